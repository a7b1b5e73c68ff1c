package interfaces

import "context"

// CredentialVault encrypts secrets under a master key held by an external
// key-management service. Failures are KindCrypto.
type CredentialVault interface {
	Encrypt(ctx context.Context, plaintext []byte, keyRef string) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte, keyRef string) ([]byte, error)
}

// KeyService generates and unwraps data keys under a master key reference.
type KeyService interface {
	// GenerateDataKey returns a fresh 32-byte data key and its wrapped form.
	GenerateDataKey(ctx context.Context, keyRef string) (plaintext []byte, wrapped []byte, err error)

	// DecryptDataKey unwraps a data key produced by GenerateDataKey.
	DecryptDataKey(ctx context.Context, keyRef string, wrapped []byte) ([]byte, error)

	// Name returns identifier for logging.
	Name() string
}

// SubjectVerifier turns a bearer credential into a verified subject.
type SubjectVerifier interface {
	Verify(ctx context.Context, token string) (AuthenticatedSubject, error)
}

// WalletProvisioner owns the wallet lifecycle.
type WalletProvisioner interface {
	// Provision returns the user's active wallet, creating it if needed.
	Provision(ctx context.Context, subject AuthenticatedSubject) (*WalletRecord, error)

	// Status returns the user's wallet record, or nil when none exists.
	// Pending records are reconciled before returning.
	Status(ctx context.Context, userID string) (*WalletRecord, error)

	// Balance returns the ledger balance of the user's active wallet.
	Balance(ctx context.Context, userID string) (*AccountBalance, error)

	// Delete closes the user's ledger account and removes its records.
	// It returns the account deletion transaction id.
	Delete(ctx context.Context, subject AuthenticatedSubject) (string, error)
}

// AssetService mints and lists folder NFTs.
type AssetService interface {
	CreateFolder(ctx context.Context, subject AuthenticatedSubject, name string, parentAssetID string) (*AssetRecord, error)
	ListAssets(ctx context.Context, userID string) ([]*AssetRecord, error)
}

// RewardService issues utility-token rewards.
type RewardService interface {
	Reward(ctx context.Context, subject AuthenticatedSubject, eventType string, multiplier int64, metadata map[string]string) (*RewardLedgerEntry, error)
	History(ctx context.Context, userID string, limit int) ([]*RewardLedgerEntry, error)
}
