package kms

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// AgeKeyService implements interfaces.KeyService with a local age X25519
// identity registered under a single key reference.
type AgeKeyService struct {
	keyRef    string
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeKeyService creates a key service answering for keyRef.
func NewAgeKeyService(keyRef string, identity *age.X25519Identity) *AgeKeyService {
	return &AgeKeyService{
		keyRef:    keyRef,
		identity:  identity,
		recipient: identity.Recipient(),
	}
}

// NewAgeKeyServiceFromFile reads an AGE-SECRET-KEY line from path.
func NewAgeKeyServiceFromFile(keyRef, path string) (*AgeKeyService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read age identity: %w", err)
	}
	identity, err := ParseIdentity(string(data))
	if err != nil {
		return nil, err
	}
	return NewAgeKeyService(keyRef, identity), nil
}

// ParseIdentity parses the first AGE-SECRET-KEY line of data, ignoring comments.
func ParseIdentity(data string) (*age.X25519Identity, error) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("invalid age identity: %w", err)
		}
		return identity, nil
	}
	return nil, fmt.Errorf("no age identity found")
}

func (s *AgeKeyService) GenerateDataKey(ctx context.Context, keyRef string) ([]byte, []byte, error) {
	if keyRef != s.keyRef {
		return nil, nil, fmt.Errorf("%w: %s", errUnknownKeyRef, keyRef)
	}

	dataKey := make([]byte, 32)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap data key: %w", err)
	}
	if _, err := w.Write(dataKey); err != nil {
		return nil, nil, fmt.Errorf("failed to wrap data key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to wrap data key: %w", err)
	}

	return dataKey, buf.Bytes(), nil
}

func (s *AgeKeyService) DecryptDataKey(ctx context.Context, keyRef string, wrapped []byte) ([]byte, error) {
	if keyRef != s.keyRef {
		return nil, fmt.Errorf("%w: %s", errUnknownKeyRef, keyRef)
	}

	r, err := age.Decrypt(bytes.NewReader(wrapped), s.identity)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}
	dataKey, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}
	return dataKey, nil
}

func (s *AgeKeyService) Name() string {
	return "age"
}
