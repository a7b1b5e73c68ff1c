package storage

import (
	"context"
	"sync"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// MemoryRegistry keeps every registry in process memory. It implements
// WalletStore, KeyStore, AssetStore and RewardLedger.
type MemoryRegistry struct {
	mu          sync.RWMutex
	wallets     map[string]interfaces.WalletRecord
	keys        map[string]interfaces.KeyRecord
	assets      map[string]interfaces.AssetRecord
	ownerAssets map[string][]string
	collections map[string]interfaces.CollectionRecord
	rewards     map[string][]interfaces.RewardLedgerEntry

	failWrites bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		wallets:     make(map[string]interfaces.WalletRecord),
		keys:        make(map[string]interfaces.KeyRecord),
		assets:      make(map[string]interfaces.AssetRecord),
		ownerAssets: make(map[string][]string),
		collections: make(map[string]interfaces.CollectionRecord),
		rewards:     make(map[string][]interfaces.RewardLedgerEntry),
	}
}

// SetFailWrites makes every subsequent write return ErrBackendUnavailable.
func (r *MemoryRegistry) SetFailWrites(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWrites = fail
}

func (r *MemoryRegistry) GetWallet(ctx context.Context, userID string) (*interfaces.WalletRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.wallets[userID]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return cloneWallet(&rec), nil
}

func (r *MemoryRegistry) CreatePendingWallet(ctx context.Context, rec *interfaces.WalletRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	if existing, ok := r.wallets[rec.UserID]; ok && existing.Status != interfaces.WalletFailed {
		return interfaces.ErrConditionFailed
	}
	r.wallets[rec.UserID] = *cloneWallet(rec)
	return nil
}

func (r *MemoryRegistry) PutWallet(ctx context.Context, rec *interfaces.WalletRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	r.wallets[rec.UserID] = *cloneWallet(rec)
	return nil
}

func (r *MemoryRegistry) DeleteWallet(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	delete(r.wallets, userID)
	return nil
}

func (r *MemoryRegistry) GetKey(ctx context.Context, userID string) (*interfaces.KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.keys[userID]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	rec.EncryptedPrivateKey = append([]byte(nil), rec.EncryptedPrivateKey...)
	return &rec, nil
}

func (r *MemoryRegistry) CreateKey(ctx context.Context, rec *interfaces.KeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	if _, ok := r.keys[rec.UserID]; ok {
		return interfaces.ErrConditionFailed
	}
	stored := *rec
	stored.EncryptedPrivateKey = append([]byte(nil), rec.EncryptedPrivateKey...)
	r.keys[rec.UserID] = stored
	return nil
}

func (r *MemoryRegistry) DeleteKey(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	delete(r.keys, userID)
	return nil
}

func (r *MemoryRegistry) CreateAsset(ctx context.Context, rec *interfaces.AssetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	if _, ok := r.assets[rec.AssetID]; ok {
		return interfaces.ErrConditionFailed
	}
	stored := *rec
	stored.MetadataBlob = append([]byte(nil), rec.MetadataBlob...)
	r.assets[rec.AssetID] = stored
	r.ownerAssets[rec.OwnerUserID] = append(r.ownerAssets[rec.OwnerUserID], rec.AssetID)
	return nil
}

func (r *MemoryRegistry) GetAsset(ctx context.Context, assetID string) (*interfaces.AssetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.assets[assetID]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *MemoryRegistry) ListAssets(ctx context.Context, ownerUserID string) ([]*interfaces.AssetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.ownerAssets[ownerUserID]
	out := make([]*interfaces.AssetRecord, 0, len(ids))
	for _, id := range ids {
		rec := r.assets[id]
		out = append(out, &rec)
	}
	return out, nil
}

func (r *MemoryRegistry) GetCollection(ctx context.Context, userID string) (*interfaces.CollectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.collections[userID]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *MemoryRegistry) CreateCollection(ctx context.Context, rec *interfaces.CollectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	if _, ok := r.collections[rec.UserID]; ok {
		return interfaces.ErrConditionFailed
	}
	r.collections[rec.UserID] = *rec
	return nil
}

func (r *MemoryRegistry) AppendReward(ctx context.Context, entry *interfaces.RewardLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return interfaces.ErrBackendUnavailable
	}
	r.rewards[entry.UserID] = append(r.rewards[entry.UserID], *entry)
	return nil
}

func (r *MemoryRegistry) ListRewards(ctx context.Context, userID string, limit int) ([]*interfaces.RewardLedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.rewards[userID]
	out := make([]*interfaces.RewardLedgerEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		e := entries[i]
		out = append(out, &e)
	}
	return out, nil
}

func cloneWallet(rec *interfaces.WalletRecord) *interfaces.WalletRecord {
	c := *rec
	c.PendingKey = append([]byte(nil), rec.PendingKey...)
	c.AssociatedTokens = append([]string(nil), rec.AssociatedTokens...)
	return &c
}

// MemoryBlobStore is a content-addressed store held in memory.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[interfaces.ContentType]map[interfaces.ContentID][]byte

	unavailable bool
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[interfaces.ContentType]map[interfaces.ContentID][]byte)}
}

// SetUnavailable makes the store report itself down and refuse writes.
func (b *MemoryBlobStore) SetUnavailable(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = down
}

func (b *MemoryBlobStore) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[contentType][id]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBlobStore) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return id, interfaces.ErrBackendUnavailable
	}
	if b.blobs[contentType] == nil {
		b.blobs[contentType] = make(map[interfaces.ContentID][]byte)
	}
	b.blobs[contentType][id] = append([]byte(nil), data...)
	return id, nil
}

func (b *MemoryBlobStore) Available(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.unavailable
}

func (b *MemoryBlobStore) Name() string {
	return "memory"
}

func (b *MemoryBlobStore) LocationURI() string {
	return "memory://"
}
