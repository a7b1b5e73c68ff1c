// Package interfaces defines the core contracts, records and error taxonomy of
// the custodial wallet backend, separating interface definitions from their
// implementations.
//
// # Records
//
// WalletRecord: per-user ledger identity, keyed by userId. Moves through the
// states pending, active and failed. At most one record exists per user and an
// active record never changes its ledger account.
//
// KeyRecord: the user's private key sealed by the CredentialVault. The
// OperatorCredential is a KeyRecord stored under OperatorUserID.
//
// AssetRecord and CollectionRecord: folder NFTs and the per-user collection
// token they are minted from.
//
// RewardLedgerEntry: append-only audit record for each utility-token reward.
//
// # Contracts
//
// CredentialVault and KeyService: envelope encryption over an external
// key-management service.
//
// LedgerClient: a signed session against exactly one ledger network, able to
// submit the Transaction specs defined here and to look up receipts.
//
// WalletStore, KeyStore, AssetStore, RewardLedger: the persistent registries.
//
// BlobStore: content-addressed storage for asset metadata documents.
//
// WalletProvisioner, AssetService, RewardService, SubjectVerifier: the
// services consumed by the HTTP layer.
//
// # Errors
//
// Every component reports failures as *Error values carrying an ErrorKind.
// The HTTP boundary maps kinds to status codes and stable codes; the cause is
// logged and never returned to clients.
package interfaces
