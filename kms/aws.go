package kms

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	awskms "github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
)

// encryptionContext is bound to every data key.
var encryptionContext = map[string]*string{
	"service": aws.String("custodial-wallet"),
}

// AWSKeyService implements interfaces.KeyService with AWS KMS.
type AWSKeyService struct {
	client kmsiface.KMSAPI
}

// NewAWSKeyService wraps an existing KMS client.
func NewAWSKeyService(client kmsiface.KMSAPI) *AWSKeyService {
	return &AWSKeyService{client: client}
}

// NewAWSKeyServiceFromConfig creates a KMS client from the default credential chain.
//
// Parameters:
//   - region: AWS region (e.g. "eu-west-1")
//   - endpoint: optional custom endpoint, e.g. for localstack
func NewAWSKeyServiceFromConfig(region, endpoint string) (*AWSKeyService, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewAWSKeyService(awskms.New(sess)), nil
}

func (s *AWSKeyService) GenerateDataKey(ctx context.Context, keyRef string) ([]byte, []byte, error) {
	out, err := s.client.GenerateDataKeyWithContext(ctx, &awskms.GenerateDataKeyInput{
		KeyId:             aws.String(keyRef),
		KeySpec:           aws.String(awskms.DataKeySpecAes256),
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(out.Plaintext) != 32 || len(out.CiphertextBlob) == 0 {
		return nil, nil, errors.New("unexpected data key from KMS")
	}
	return out.Plaintext, out.CiphertextBlob, nil
}

func (s *AWSKeyService) DecryptDataKey(ctx context.Context, keyRef string, wrapped []byte) ([]byte, error) {
	out, err := s.client.DecryptWithContext(ctx, &awskms.DecryptInput{
		KeyId:             aws.String(keyRef),
		CiphertextBlob:    wrapped,
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, err
	}
	return out.Plaintext, nil
}

func (s *AWSKeyService) Name() string {
	return "aws-kms"
}
