package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
	bolt "go.etcd.io/bbolt"
)

var (
	walletsBucket     = []byte("wallets")
	keysBucket        = []byte("keys")
	assetsBucket      = []byte("assets")
	ownerAssetsBucket = []byte("owner_assets")
	collectionsBucket = []byte("collections")
	rewardsBucket     = []byte("rewards")
)

// BoltRegistry implements every registry on a single bbolt file. Writes are
// serialized by bbolt, which makes the conditional creates atomic.
type BoltRegistry struct {
	db   *bolt.DB
	path string
	log  *slog.Logger
}

// NewBoltRegistry opens or creates the registry file at path.
func NewBoltRegistry(path string, log *slog.Logger) (*BoltRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{walletsBucket, keysBucket, assetsBucket, ownerAssetsBucket, collectionsBucket, rewardsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize registry buckets: %w", err)
	}

	log.Debug("Opened bolt registry", slog.String("path", path))
	return &BoltRegistry{db: db, path: path, log: log}, nil
}

func (r *BoltRegistry) Close() error {
	return r.db.Close()
}

func (r *BoltRegistry) get(bucket []byte, key string, out any) error {
	return r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return interfaces.ErrRecordNotFound
		}
		return json.Unmarshal(data, out)
	})
}

func (r *BoltRegistry) put(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (r *BoltRegistry) delete(bucket []byte, key string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

func (r *BoltRegistry) GetWallet(ctx context.Context, userID string) (*interfaces.WalletRecord, error) {
	var rec interfaces.WalletRecord
	if err := r.get(walletsBucket, userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *BoltRegistry) CreatePendingWallet(ctx context.Context, rec *interfaces.WalletRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(walletsBucket)
		if existing := b.Get([]byte(rec.UserID)); existing != nil {
			var current interfaces.WalletRecord
			if err := json.Unmarshal(existing, &current); err != nil {
				return err
			}
			if current.Status != interfaces.WalletFailed {
				return interfaces.ErrConditionFailed
			}
		}
		return b.Put([]byte(rec.UserID), data)
	})
}

func (r *BoltRegistry) PutWallet(ctx context.Context, rec *interfaces.WalletRecord) error {
	return r.put(walletsBucket, rec.UserID, rec)
}

func (r *BoltRegistry) DeleteWallet(ctx context.Context, userID string) error {
	return r.delete(walletsBucket, userID)
}

func (r *BoltRegistry) GetKey(ctx context.Context, userID string) (*interfaces.KeyRecord, error) {
	var rec interfaces.KeyRecord
	if err := r.get(keysBucket, userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *BoltRegistry) CreateKey(ctx context.Context, rec *interfaces.KeyRecord) error {
	return r.createIfAbsent(keysBucket, rec.UserID, rec)
}

func (r *BoltRegistry) DeleteKey(ctx context.Context, userID string) error {
	return r.delete(keysBucket, userID)
}

func (r *BoltRegistry) createIfAbsent(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) != nil {
			return interfaces.ErrConditionFailed
		}
		return b.Put([]byte(key), data)
	})
}

// sequencedKey orders entries of one owner by insertion.
func sequencedKey(owner string, seq uint64) []byte {
	key := make([]byte, 0, len(owner)+9)
	key = append(key, owner...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint64(key, seq)
}

func ownerPrefix(owner string) []byte {
	return append([]byte(owner), 0)
}

func (r *BoltRegistry) CreateAsset(ctx context.Context, rec *interfaces.AssetRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		assets := tx.Bucket(assetsBucket)
		if assets.Get([]byte(rec.AssetID)) != nil {
			return interfaces.ErrConditionFailed
		}
		if err := assets.Put([]byte(rec.AssetID), data); err != nil {
			return err
		}
		index := tx.Bucket(ownerAssetsBucket)
		seq, err := index.NextSequence()
		if err != nil {
			return err
		}
		return index.Put(sequencedKey(rec.OwnerUserID, seq), []byte(rec.AssetID))
	})
}

func (r *BoltRegistry) GetAsset(ctx context.Context, assetID string) (*interfaces.AssetRecord, error) {
	var rec interfaces.AssetRecord
	if err := r.get(assetsBucket, assetID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *BoltRegistry) ListAssets(ctx context.Context, ownerUserID string) ([]*interfaces.AssetRecord, error) {
	var out []*interfaces.AssetRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		assets := tx.Bucket(assetsBucket)
		prefix := ownerPrefix(ownerUserID)
		c := tx.Bucket(ownerAssetsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			data := assets.Get(v)
			if data == nil {
				continue
			}
			var rec interfaces.AssetRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BoltRegistry) GetCollection(ctx context.Context, userID string) (*interfaces.CollectionRecord, error) {
	var rec interfaces.CollectionRecord
	if err := r.get(collectionsBucket, userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *BoltRegistry) CreateCollection(ctx context.Context, rec *interfaces.CollectionRecord) error {
	return r.createIfAbsent(collectionsBucket, rec.UserID, rec)
}

func (r *BoltRegistry) AppendReward(ctx context.Context, entry *interfaces.RewardLedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(rewardsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequencedKey(entry.UserID, seq), data)
	})
}

func (r *BoltRegistry) ListRewards(ctx context.Context, userID string, limit int) ([]*interfaces.RewardLedgerEntry, error) {
	var out []*interfaces.RewardLedgerEntry
	err := r.db.View(func(tx *bolt.Tx) error {
		prefix := ownerPrefix(userID)
		c := tx.Bucket(rewardsBucket).Cursor()

		// Position on the last key of the prefix and walk backwards.
		k, v := c.Seek(sequencedKey(userID, ^uint64(0)))
		if k == nil {
			k, v = c.Last()
		} else if !bytes.HasPrefix(k, prefix) {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			if limit > 0 && len(out) == limit {
				break
			}
			var entry interfaces.RewardLedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
