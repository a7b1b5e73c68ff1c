package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// MaxSecretSize is the largest secret the vault accepts.
const MaxSecretSize = 4096

// EnvelopeVault implements interfaces.CredentialVault on top of a KeyService.
type EnvelopeVault struct {
	keys interfaces.KeyService
	log  *slog.Logger
}

// NewEnvelopeVault creates a vault wrapping data keys with keys.
func NewEnvelopeVault(keys interfaces.KeyService, log *slog.Logger) *EnvelopeVault {
	return &EnvelopeVault{
		keys: keys,
		log:  log,
	}
}

// Encrypt seals plaintext under a fresh data key wrapped by keyRef.
func (v *EnvelopeVault) Encrypt(ctx context.Context, plaintext []byte, keyRef string) ([]byte, error) {
	if keyRef == "" {
		return nil, interfaces.NewError(interfaces.KindCrypto, "missing key reference", nil)
	}
	if len(plaintext) == 0 || len(plaintext) > MaxSecretSize {
		return nil, interfaces.NewError(interfaces.KindCrypto,
			fmt.Sprintf("secret must be between 1 and %d bytes", MaxSecretSize), nil)
	}

	dataKey, wrapped, err := v.keys.GenerateDataKey(ctx, keyRef)
	if err != nil {
		v.log.Error("Failed to generate data key",
			"err", err,
			slog.String("keyService", v.keys.Name()),
			slog.String("keyRef", keyRef))
		return nil, interfaces.NewError(interfaces.KindCrypto, "key service denied data key generation", err)
	}
	defer cryptoutils.Zero(dataKey)

	sealed, err := cryptoutils.SealEnvelope(dataKey, wrapped, plaintext, []byte(keyRef))
	if err != nil {
		return nil, interfaces.NewError(interfaces.KindCrypto, "failed to seal secret", err)
	}
	return sealed, nil
}

// Decrypt opens an envelope produced by Encrypt under the same keyRef.
func (v *EnvelopeVault) Decrypt(ctx context.Context, ciphertext []byte, keyRef string) ([]byte, error) {
	if keyRef == "" {
		return nil, interfaces.NewError(interfaces.KindCrypto, "missing key reference", nil)
	}

	env, err := cryptoutils.ParseEnvelope(ciphertext)
	if err != nil {
		return nil, interfaces.NewError(interfaces.KindCrypto, "malformed ciphertext", err)
	}

	dataKey, err := v.keys.DecryptDataKey(ctx, keyRef, env.WrappedKey)
	if err != nil {
		v.log.Error("Failed to unwrap data key",
			"err", err,
			slog.String("keyService", v.keys.Name()),
			slog.String("keyRef", keyRef))
		return nil, interfaces.NewError(interfaces.KindCrypto, "key service denied data key decryption", err)
	}
	defer cryptoutils.Zero(dataKey)

	plaintext, err := env.Open(dataKey, []byte(keyRef))
	if err != nil {
		return nil, interfaces.NewError(interfaces.KindCrypto, "ciphertext authentication failed", err)
	}
	return plaintext, nil
}

var errUnknownKeyRef = errors.New("unknown key reference")
