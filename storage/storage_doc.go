// Package storage implements the registries and the metadata blob stores.
//
// # Registries
//
// Every registry is keyed by userId, except assets which are keyed by
// "<tokenId>/<serial>". Three implementations cover every registry interface:
//
//   - MemoryRegistry for tests and the memory mode of the server
//   - BoltRegistry on a single bbolt file for single-node deployments
//   - DynamoRegistry on DynamoDB tables for clustered deployments
//
// VaultKeyStore optionally moves wallet keys to a HashiCorp Vault KV v2 mount.
//
// Conditional creates (CreatePendingWallet, CreateKey, CreateAsset,
// CreateCollection) report interfaces.ErrConditionFailed when the condition
// does not hold; CreatePendingWallet is the only cross-process lock of wallet
// provisioning.
//
// # Registry URI Format
//
//	memory://
//	bolt:///var/lib/custody/registry.db
//	dynamodb://us-east-1/custody?endpoint=http://localhost:8000
//	vault://vault.example.com:8200/secret/custody/keys
//
// # Blob Stores
//
// Folder and collection metadata documents are content addressed by their
// SHA-256 hash:
//
//	memory://
//	file:///var/lib/custody/metadata
//	s3://bucket-name/prefix/?region=us-west-2
//	ipfs://ipfs.example.com:5001/custody
//
// StorageBackendFactory.CreateMultiBackend replicates documents over several
// blob stores; reads fall back to the next backend.
package storage
