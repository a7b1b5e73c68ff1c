package storage

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// Registry groups the registries the services depend on.
type Registry struct {
	Wallets interfaces.WalletStore
	Keys    interfaces.KeyStore
	Assets  interfaces.AssetStore
	Rewards interfaces.RewardLedger

	closers []func() error
}

// Close releases the underlying databases.
func (r *Registry) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StorageBackendFactory creates blob stores and registries from location URIs.
type StorageBackendFactory struct {
	log *slog.Logger
}

func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: logger}
}

// RegistryFor opens the registries at locationURI.
//
// Supported schemes:
//   - memory:// - process memory, lost on restart
//   - bolt:///var/lib/custody/registry.db - single-node bbolt file
//   - dynamodb://us-east-1/custody?endpoint=http://localhost:8000 - DynamoDB tables named <prefix>-wallets etc.
func (sf *StorageBackendFactory) RegistryFor(locationURI string) (*Registry, error) {
	loc, err := interfaces.NewStorageLocation(locationURI)
	if err != nil {
		return nil, err
	}
	sf.log.Debug("Opening registry", slog.String("uri", locationURI))

	switch loc.Scheme {
	case "memory":
		r := NewMemoryRegistry()
		return &Registry{Wallets: r, Keys: r, Assets: r, Rewards: r}, nil
	case "bolt":
		path := loc.Path
		if loc.Host != "" {
			path = loc.Host + "/" + strings.TrimPrefix(path, "/")
		}
		if path == "" {
			return nil, fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, locationURI)
		}
		r, err := NewBoltRegistry(path, sf.log)
		if err != nil {
			return nil, err
		}
		return &Registry{Wallets: r, Keys: r, Assets: r, Rewards: r, closers: []func() error{r.Close}}, nil
	case "dynamodb":
		region := loc.Host
		if region == "" {
			region = "us-east-1"
		}
		r, err := NewDynamoRegistryFromConfig(region, loc.GetParam("endpoint"), DefaultDynamoTables(strings.Trim(loc.Path, "/")), sf.log)
		if err != nil {
			return nil, err
		}
		return &Registry{Wallets: r, Keys: r, Assets: r, Rewards: r}, nil
	default:
		return nil, fmt.Errorf("%w: scheme %q cannot hold registries", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// KeyStoreFor opens a dedicated key store, replacing the registry's own.
// Only vault://host:port/mount/path is supported; the token is read from
// VAULT_TOKEN and ?insecure=true selects plain http.
func (sf *StorageBackendFactory) KeyStoreFor(locationURI string) (interfaces.KeyStore, error) {
	loc, err := interfaces.NewStorageLocation(locationURI)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "vault" {
		return nil, fmt.Errorf("%w: scheme %q cannot hold wallet keys", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	if mount == "" || dataPath == "" {
		return nil, fmt.Errorf("%w: expected vault://host/mount/path", interfaces.ErrInvalidLocationURI)
	}
	scheme := "https"
	if loc.GetParamBool("insecure") {
		scheme = "http"
	}
	return NewVaultKeyStore(fmt.Sprintf("%s://%s", scheme, loc.Host), mount, dataPath, VaultOptions{Token: os.Getenv("VAULT_TOKEN")}, sf.log)
}

// BlobStoreFor creates a metadata blob store from a location URI.
//
// Supported schemes:
//   - memory:// - process memory
//   - file:///var/lib/custody/metadata - local filesystem
//   - s3://bucket/prefix?region=us-west-2&endpoint=custom.s3.com
//   - ipfs://host:5001/custody?timeout=30s
func (sf *StorageBackendFactory) BlobStoreFor(locationURI string) (interfaces.BlobStore, error) {
	loc, err := interfaces.NewStorageLocation(locationURI)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "memory":
		return NewMemoryBlobStore(), nil
	case "file":
		return sf.createFileBackend(loc)
	case "s3":
		return sf.createS3Backend(loc)
	case "ipfs":
		return sf.createIPFSBackend(loc)
	default:
		return nil, fmt.Errorf("%w: scheme %q cannot hold metadata", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a replicated blob store from several URIs.
// URIs that fail to open are logged and skipped.
func (sf *StorageBackendFactory) CreateMultiBackend(locationURIs []string) (interfaces.BlobStore, error) {
	backends := make([]interfaces.BlobStore, 0, len(locationURIs))
	for _, uri := range locationURIs {
		backend, err := sf.BlobStoreFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", uri))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiStorageBackend(backends, sf.log), nil
}

// createIPFSBackend handles ipfs://host:port/root?timeout=30s.
func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageLocation) (interfaces.BlobStore, error) {
	host, port, ok := strings.Cut(loc.Host, ":")
	if !ok || port == "" {
		port = "5001"
	}

	timeout := 30 * time.Second
	if t := loc.GetParam("timeout"); t != "" {
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, t)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, loc.Path, timeout, sf.log)
}

// createS3Backend handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=...&endpoint=...
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageLocation) (interfaces.BlobStore, error) {
	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
		sf.log.Debug("Using embedded S3 credentials")
	}

	return NewS3Backend(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createFileBackend handles file:///absolute/path and file://./relative/path.
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageLocation) (interfaces.BlobStore, error) {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, loc.Raw)
	}
	return NewFileBackend(path, sf.log)
}
