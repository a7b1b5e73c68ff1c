package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// VaultKeyStore implements interfaces.KeyStore on a HashiCorp Vault KV v2
// mount. Records are written with check-and-set version 0, so a key can only
// be created once.
type VaultKeyStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// VaultOptions configures authentication of a VaultKeyStore.
type VaultOptions struct {
	// Token authenticates requests. Defaults to VAULT_TOKEN.
	Token string
	// ClientCert enables TLS client certificate authentication.
	ClientCert *tls.Certificate
}

// NewVaultKeyStore creates a key store backed by Vault.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "custody/keys")
//   - opts: authentication options
//   - log: Structured logger for operational insights
func NewVaultKeyStore(address, mountPath, dataPath string, opts VaultOptions, log *slog.Logger) (*VaultKeyStore, error) {
	config := api.DefaultConfig()
	config.Address = address

	if opts.ClientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{*opts.ClientCert}},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultKeyStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

func (s *VaultKeyStore) secretPath(kind, userID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", s.mountPath, kind, s.dataPath, userID)
}

// GetKey reads the record of userID.
func (s *VaultKeyStore) GetKey(ctx context.Context, userID string) (*interfaces.KeyRecord, error) {
	path := s.secretPath("data", userID)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil || secret.Data["data"] == nil {
		return nil, interfaces.ErrRecordNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, errors.New("invalid data format in Vault response")
	}
	encoded, ok := data["record"].(string)
	if !ok {
		return nil, errors.New("record key not found in Vault data")
	}

	var rec interfaces.KeyRecord
	if err := json.Unmarshal([]byte(encoded), &rec); err != nil {
		return nil, fmt.Errorf("invalid key record in Vault: %w", err)
	}
	return &rec, nil
}

// CreateKey writes rec unless a record already exists for rec.UserID.
func (s *VaultKeyStore) CreateKey(ctx context.Context, rec *interfaces.KeyRecord) error {
	path := s.secretPath("data", rec.UserID)

	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"options": map[string]interface{}{"cas": 0},
		"data":    map[string]interface{}{"record": string(encoded)},
	})
	if err != nil {
		if strings.Contains(err.Error(), "check-and-set parameter did not match") {
			return interfaces.ErrConditionFailed
		}
		s.log.Error("Failed to write to Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	s.log.Debug("Stored key record in Vault", slog.String("userId", rec.UserID))
	return nil
}

// DeleteKey removes every version of the record of userID.
func (s *VaultKeyStore) DeleteKey(ctx context.Context, userID string) error {
	path := s.secretPath("metadata", userID)
	if _, err := s.client.Logical().DeleteWithContext(ctx, path); err != nil {
		s.log.Error("Failed to delete from Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks that Vault is initialized and unsealed.
func (s *VaultKeyStore) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := s.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		s.log.Debug("Vault health check failed", "err", err)
		return false
	}
	return health.Initialized && !health.Sealed
}

// LocationURI returns the URI that identifies this key store.
func (s *VaultKeyStore) LocationURI() string {
	return s.locationURI
}
