package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registry interface {
	interfaces.WalletStore
	interfaces.KeyStore
	interfaces.AssetStore
	interfaces.RewardLedger
}

func registryBackends(t *testing.T) map[string]func(t *testing.T) registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return map[string]func(t *testing.T) registry{
		"memory": func(t *testing.T) registry {
			return NewMemoryRegistry()
		},
		"bolt": func(t *testing.T) registry {
			r, err := NewBoltRegistry(filepath.Join(t.TempDir(), "registry.db"), logger)
			require.NoError(t, err)
			t.Cleanup(func() { r.Close() })
			return r
		},
		"dynamodb": func(t *testing.T) registry {
			return NewDynamoRegistry(newFakeDynamo(), DefaultDynamoTables("test"), logger)
		},
	}
}

func TestRegistry_PendingWalletIsExclusive(t *testing.T) {
	for name, newRegistry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)
			ctx := context.Background()

			_, err := r.GetWallet(ctx, "user-1")
			assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

			pending := &interfaces.WalletRecord{UserID: "user-1", Network: "testnet", Status: interfaces.WalletPending, PendingTxID: "tx-1", PendingKey: []byte{1, 2, 3}}
			require.NoError(t, r.CreatePendingWallet(ctx, pending))
			assert.ErrorIs(t, r.CreatePendingWallet(ctx, pending), interfaces.ErrConditionFailed)

			got, err := r.GetWallet(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, interfaces.WalletPending, got.Status)
			assert.Equal(t, "tx-1", got.PendingTxID)
			assert.Equal(t, []byte{1, 2, 3}, got.PendingKey)

			// A failed record may be replaced by a new attempt.
			got.Status = interfaces.WalletFailed
			require.NoError(t, r.PutWallet(ctx, got))
			pending.PendingTxID = "tx-2"
			require.NoError(t, r.CreatePendingWallet(ctx, pending))

			// No other status may.
			got, err = r.GetWallet(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, "tx-2", got.PendingTxID)
			for _, status := range []interfaces.WalletStatus{interfaces.WalletUnresolved, interfaces.WalletDeleting, interfaces.WalletActive} {
				got.Status = status
				require.NoError(t, r.PutWallet(ctx, got))
				assert.ErrorIs(t, r.CreatePendingWallet(ctx, pending), interfaces.ErrConditionFailed, status)
			}

			require.NoError(t, r.DeleteWallet(ctx, "user-1"))
			_, err = r.GetWallet(ctx, "user-1")
			assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
		})
	}
}

func TestRegistry_ConcurrentPendingWallet(t *testing.T) {
	for name, newRegistry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)
			ctx := context.Background()

			const workers = 16
			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := r.CreatePendingWallet(ctx, &interfaces.WalletRecord{UserID: "user-1", Status: interfaces.WalletPending, PendingTxID: fmt.Sprintf("tx-%d", i)})
					if err == nil {
						mu.Lock()
						winners++
						mu.Unlock()
					} else {
						assert.ErrorIs(t, err, interfaces.ErrConditionFailed)
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 1, winners)
		})
	}
}

func TestRegistry_KeyRecordCreatedOnce(t *testing.T) {
	for name, newRegistry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)
			ctx := context.Background()

			rec := &interfaces.KeyRecord{
				UserID:                 "user-1",
				LedgerAccountID:        "0.0.1001",
				PublicKey:              "02ab",
				EncryptedPrivateKey:    []byte("sealed"),
				EncryptionKeyReference: "wallet-keys",
				KeyAlgorithm:           interfaces.KeyAlgorithmECDSASecp256k1,
				CreatedAt:              time.Now().UTC().Truncate(time.Second),
			}
			require.NoError(t, r.CreateKey(ctx, rec))
			assert.ErrorIs(t, r.CreateKey(ctx, rec), interfaces.ErrConditionFailed)

			got, err := r.GetKey(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, rec.EncryptedPrivateKey, got.EncryptedPrivateKey)
			assert.Equal(t, rec.LedgerAccountID, got.LedgerAccountID)
			assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

			require.NoError(t, r.DeleteKey(ctx, "user-1"))
			_, err = r.GetKey(ctx, "user-1")
			assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
		})
	}
}

func TestRegistry_Assets(t *testing.T) {
	for name, newRegistry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Second)

			for i := 1; i <= 3; i++ {
				rec := &interfaces.AssetRecord{
					AssetID:      interfaces.AssetIDFor("0.0.5000", int64(i)),
					TokenID:      "0.0.5000",
					SerialNumber: int64(i),
					OwnerUserID:  "user-1",
					Name:         fmt.Sprintf("folder-%d", i),
					CreatedAt:    base.Add(time.Duration(i) * time.Second),
				}
				require.NoError(t, r.CreateAsset(ctx, rec))
			}
			require.NoError(t, r.CreateAsset(ctx, &interfaces.AssetRecord{AssetID: "0.0.6000/1", OwnerUserID: "user-2", CreatedAt: base}))

			dup := &interfaces.AssetRecord{AssetID: "0.0.5000/1", OwnerUserID: "user-2"}
			assert.ErrorIs(t, r.CreateAsset(ctx, dup), interfaces.ErrConditionFailed)

			list, err := r.ListAssets(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, list, 3)
			for i, rec := range list {
				assert.Equal(t, fmt.Sprintf("folder-%d", i+1), rec.Name)
			}

			empty, err := r.ListAssets(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)

			got, err := r.GetAsset(ctx, "0.0.6000/1")
			require.NoError(t, err)
			assert.Equal(t, "user-2", got.OwnerUserID)

			_, err = r.GetAsset(ctx, "0.0.6000/2")
			assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
		})
	}
}

func TestRegistry_Collections(t *testing.T) {
	for name, newRegistry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)
			ctx := context.Background()

			_, err := r.GetCollection(ctx, "user-1")
			assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

			rec := &interfaces.CollectionRecord{UserID: "user-1", TokenID: "0.0.5000"}
			require.NoError(t, r.CreateCollection(ctx, rec))
			assert.ErrorIs(t, r.CreateCollection(ctx, &interfaces.CollectionRecord{UserID: "user-1", TokenID: "0.0.5001"}), interfaces.ErrConditionFailed)

			got, err := r.GetCollection(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, "0.0.5000", got.TokenID)
		})
	}
}

func TestRegistry_RewardsNewestFirst(t *testing.T) {
	for name, newRegistry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Second)

			for i := 0; i < 5; i++ {
				require.NoError(t, r.AppendReward(ctx, &interfaces.RewardLedgerEntry{
					RewardID:  fmt.Sprintf("r-%02d", i),
					UserID:    "user-1",
					EventType: "FILE_UPLOAD",
					Amount:    "10",
					Timestamp: base.Add(time.Duration(i) * time.Minute),
					ExpiresAt: base.Add(400 * 24 * time.Hour),
				}))
			}
			require.NoError(t, r.AppendReward(ctx, &interfaces.RewardLedgerEntry{RewardID: "other", UserID: "user-2"}))

			all, err := r.ListRewards(ctx, "user-1", 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "r-04", all[0].RewardID)
			assert.Equal(t, "r-00", all[4].RewardID)

			limited, err := r.ListRewards(ctx, "user-1", 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "r-04", limited[0].RewardID)
			assert.Equal(t, "r-03", limited[1].RewardID)

			none, err := r.ListRewards(ctx, "user-3", 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestMemoryRegistry_FailWrites(t *testing.T) {
	r := NewMemoryRegistry()
	r.SetFailWrites(true)
	err := r.PutWallet(context.Background(), &interfaces.WalletRecord{UserID: "user-1"})
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

func TestBoltRegistry_Reopen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "nested", "registry.db")
	ctx := context.Background()

	r, err := NewBoltRegistry(path, logger)
	require.NoError(t, err)
	require.NoError(t, r.PutWallet(ctx, &interfaces.WalletRecord{UserID: "user-1", Status: interfaces.WalletActive, LedgerAccountID: "0.0.1001"}))
	require.NoError(t, r.AppendReward(ctx, &interfaces.RewardLedgerEntry{RewardID: "a", UserID: "user-1"}))
	require.NoError(t, r.Close())

	r, err = NewBoltRegistry(path, logger)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "0.0.1001", got.LedgerAccountID)

	require.NoError(t, r.AppendReward(ctx, &interfaces.RewardLedgerEntry{RewardID: "b", UserID: "user-1"}))
	rewards, err := r.ListRewards(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, "b", rewards[0].RewardID)
}
