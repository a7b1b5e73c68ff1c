package kms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"filippo.io/age"
	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyRef = "wallet-keys"

func newTestVault(t *testing.T) *EnvelopeVault {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEnvelopeVault(NewAgeKeyService(testKeyRef, identity), log)
}

type failingKeyService struct{}

func (failingKeyService) GenerateDataKey(context.Context, string) ([]byte, []byte, error) {
	return nil, nil, errors.New("AccessDeniedException")
}

func (failingKeyService) DecryptDataKey(context.Context, string, []byte) ([]byte, error) {
	return nil, errors.New("AccessDeniedException")
}

func (failingKeyService) Name() string { return "failing" }

func TestEnvelopeVault_RoundTripPrivateKeys(t *testing.T) {
	vault := newTestVault(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		kp, err := cryptoutils.GenerateLedgerKeypair()
		require.NoError(t, err)

		sealed, err := vault.Encrypt(ctx, kp.PrivateKey, testKeyRef)
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), string(kp.PrivateKey), "Plaintext key must not appear in ciphertext")

		plaintext, err := vault.Decrypt(ctx, sealed, testKeyRef)
		require.NoError(t, err)
		assert.Equal(t, kp.PrivateKey, plaintext)
	}
}

func TestEnvelopeVault_FreshDataKeyPerEncryption(t *testing.T) {
	vault := newTestVault(t)
	ctx := context.Background()

	a, err := vault.Encrypt(ctx, []byte("operator-secret"), testKeyRef)
	require.NoError(t, err)
	b, err := vault.Encrypt(ctx, []byte("operator-secret"), testKeyRef)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEnvelopeVault_CryptoFailures(t *testing.T) {
	vault := newTestVault(t)
	ctx := context.Background()

	sealed, err := vault.Encrypt(ctx, []byte("secret"), testKeyRef)
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "Wrong key reference",
			run: func() error {
				_, err := vault.Decrypt(ctx, sealed, "other-key")
				return err
			},
		},
		{
			name: "Tampered ciphertext",
			run: func() error {
				tampered := append([]byte{}, sealed...)
				tampered[len(tampered)-1] ^= 0xFF
				_, err := vault.Decrypt(ctx, tampered, testKeyRef)
				return err
			},
		},
		{
			name: "Malformed ciphertext",
			run: func() error {
				_, err := vault.Decrypt(ctx, []byte("not an envelope"), testKeyRef)
				return err
			},
		},
		{
			name: "Empty secret",
			run: func() error {
				_, err := vault.Encrypt(ctx, nil, testKeyRef)
				return err
			},
		},
		{
			name: "Oversized secret",
			run: func() error {
				_, err := vault.Encrypt(ctx, make([]byte, MaxSecretSize+1), testKeyRef)
				return err
			},
		},
		{
			name: "Missing key reference",
			run: func() error {
				_, err := vault.Encrypt(ctx, []byte("secret"), "")
				return err
			},
		},
		{
			name: "Service denial",
			run: func() error {
				denied := NewEnvelopeVault(failingKeyService{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
				_, err := denied.Encrypt(ctx, []byte("secret"), testKeyRef)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrCryptoFailure)
		})
	}
}
