package kms

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	awskms "github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKMS wraps data keys by prefixing them with the key id.
type fakeKMS struct {
	kmsiface.KMSAPI
	keyID string
}

func (f *fakeKMS) GenerateDataKeyWithContext(_ aws.Context, in *awskms.GenerateDataKeyInput, _ ...request.Option) (*awskms.GenerateDataKeyOutput, error) {
	if aws.StringValue(in.KeyId) != f.keyID {
		return nil, errors.New("NotFoundException: key does not exist")
	}
	if aws.StringValue(in.EncryptionContext["service"]) != "custodial-wallet" {
		return nil, errors.New("missing encryption context")
	}
	plaintext := make([]byte, 32)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, err
	}
	blob := append([]byte(f.keyID+":"), plaintext...)
	return &awskms.GenerateDataKeyOutput{
		KeyId:          in.KeyId,
		Plaintext:      plaintext,
		CiphertextBlob: blob,
	}, nil
}

func (f *fakeKMS) DecryptWithContext(_ aws.Context, in *awskms.DecryptInput, _ ...request.Option) (*awskms.DecryptOutput, error) {
	prefix := []byte(aws.StringValue(in.KeyId) + ":")
	if aws.StringValue(in.KeyId) != f.keyID || len(in.CiphertextBlob) != len(prefix)+32 {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &awskms.DecryptOutput{Plaintext: in.CiphertextBlob[len(prefix):]}, nil
}

func TestAWSKeyService(t *testing.T) {
	svc := NewAWSKeyService(&fakeKMS{keyID: "alias/wallet-keys"})
	ctx := context.Background()

	dataKey, wrapped, err := svc.GenerateDataKey(ctx, "alias/wallet-keys")
	require.NoError(t, err)
	assert.Len(t, dataKey, 32)

	unwrapped, err := svc.DecryptDataKey(ctx, "alias/wallet-keys", wrapped)
	require.NoError(t, err)
	assert.Equal(t, dataKey, unwrapped)

	_, _, err = svc.GenerateDataKey(ctx, "alias/unknown")
	assert.Error(t, err)

	_, err = svc.DecryptDataKey(ctx, "alias/wallet-keys", []byte("garbage"))
	assert.Error(t, err)

	assert.Equal(t, "aws-kms", svc.Name())
}
