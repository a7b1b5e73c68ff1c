package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// TransitKeyService implements interfaces.KeyService with the Vault Transit
// secrets engine.
type TransitKeyService struct {
	client    *api.Client
	mountPath string
}

// NewTransitKeyService creates a Transit client.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token with update permission on the datakey and decrypt endpoints
//   - mountPath: Transit mount path (e.g. "transit")
func NewTransitKeyService(address, token, mountPath string) (*TransitKeyService, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &TransitKeyService{
		client:    client,
		mountPath: strings.Trim(mountPath, "/"),
	}, nil
}

func (s *TransitKeyService) GenerateDataKey(ctx context.Context, keyRef string) ([]byte, []byte, error) {
	path := fmt.Sprintf("%s/datakey/plaintext/%s", s.mountPath, keyRef)
	secret, err := s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"bits": 256,
	})
	if err != nil {
		return nil, nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, nil, errors.New("empty datakey response from Vault")
	}

	plaintextB64, _ := secret.Data["plaintext"].(string)
	wrapped, _ := secret.Data["ciphertext"].(string)
	if plaintextB64 == "" || wrapped == "" {
		return nil, nil, errors.New("invalid datakey response from Vault")
	}

	dataKey, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid datakey encoding: %w", err)
	}
	if len(dataKey) != 32 {
		return nil, nil, errors.New("unexpected data key length from Vault")
	}
	return dataKey, []byte(wrapped), nil
}

func (s *TransitKeyService) DecryptDataKey(ctx context.Context, keyRef string, wrapped []byte) ([]byte, error) {
	path := fmt.Sprintf("%s/decrypt/%s", s.mountPath, keyRef)
	secret, err := s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.New("empty decrypt response from Vault")
	}

	plaintextB64, _ := secret.Data["plaintext"].(string)
	if plaintextB64 == "" {
		return nil, errors.New("invalid decrypt response from Vault")
	}
	return base64.StdEncoding.DecodeString(plaintextB64)
}

func (s *TransitKeyService) Name() string {
	return "vault-transit"
}
