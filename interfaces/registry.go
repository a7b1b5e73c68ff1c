package interfaces

import "context"

// WalletStore is the wallet-metadata registry keyed by userId.
type WalletStore interface {
	// GetWallet returns ErrRecordNotFound when the user has no record.
	GetWallet(ctx context.Context, userID string) (*WalletRecord, error)

	// CreatePendingWallet writes rec when no record exists for rec.UserID or
	// the existing record is failed. Otherwise it returns ErrConditionFailed.
	// This is the only cross-process lock of the provisioning flow.
	CreatePendingWallet(ctx context.Context, rec *WalletRecord) error

	// PutWallet overwrites the record.
	PutWallet(ctx context.Context, rec *WalletRecord) error

	DeleteWallet(ctx context.Context, userID string) error
}

// KeyStore is the wallet-keys registry keyed by userId.
type KeyStore interface {
	GetKey(ctx context.Context, userID string) (*KeyRecord, error)

	// CreateKey writes rec if no key exists for rec.UserID, otherwise
	// returns ErrConditionFailed.
	CreateKey(ctx context.Context, rec *KeyRecord) error

	DeleteKey(ctx context.Context, userID string) error
}

// AssetStore is the asset-metadata registry.
type AssetStore interface {
	// CreateAsset writes rec if rec.AssetID is unused, otherwise returns
	// ErrConditionFailed.
	CreateAsset(ctx context.Context, rec *AssetRecord) error
	GetAsset(ctx context.Context, assetID string) (*AssetRecord, error)
	// ListAssets returns the user's assets ordered by creation time.
	ListAssets(ctx context.Context, ownerUserID string) ([]*AssetRecord, error)

	GetCollection(ctx context.Context, userID string) (*CollectionRecord, error)
	// CreateCollection writes rec if the user has no collection, otherwise
	// returns ErrConditionFailed.
	CreateCollection(ctx context.Context, rec *CollectionRecord) error
}

// RewardLedger is the append-only reward registry.
type RewardLedger interface {
	AppendReward(ctx context.Context, entry *RewardLedgerEntry) error
	// ListRewards returns up to limit entries, newest first. A limit of zero
	// returns all entries.
	ListRewards(ctx context.Context, userID string, limit int) ([]*RewardLedgerEntry, error)
}
