// Package custodytest assembles the custody services over the in-memory
// ledger and registries for tests.
package custodytest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/ruteri/custodial-wallet-backend/assets"
	"github.com/ruteri/custodial-wallet-backend/kms"
	"github.com/ruteri/custodial-wallet-backend/ledger"
	"github.com/ruteri/custodial-wallet-backend/rewards"
	"github.com/ruteri/custodial-wallet-backend/storage"
	"github.com/ruteri/custodial-wallet-backend/wallet"
	"github.com/stretchr/testify/require"
)

const (
	Network = "testnet"
	KeyRef  = "wallet-keys"

	// OperatorBalance is the starting hbar balance of the operator, in tinybars.
	OperatorBalance = 100_000_000_000
	RewardDecimals  = 2
)

// Stack is a fully wired custody backend over the memory network.
type Stack struct {
	Log      *slog.Logger
	Network  *ledger.MemoryNetwork
	Registry *storage.MemoryRegistry
	Blobs    *storage.MemoryBlobStore
	Vault    *kms.EnvelopeVault
	Ledger   *ledger.Orchestrator

	Wallets *wallet.Provisioner
	Assets  *assets.Service
	Rewards *rewards.Engine
	TokenID string
}

// New builds a stack with an imported operator and a freshly created
// reward token.
func New(t testing.TB) *Stack {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	network, err := ledger.NewMemoryNetwork(Network, OperatorBalance)
	require.NoError(t, err)

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	vault := kms.NewEnvelopeVault(kms.NewAgeKeyService(KeyRef, identity), log)
	registry := storage.NewMemoryRegistry()
	blobs := storage.NewMemoryBlobStore()

	accountID, key := network.OperatorCredential()
	require.NoError(t, ledger.ImportOperator(ctx, registry, vault, KeyRef,
		ledger.OperatorIdentity{AccountID: accountID, PrivateKey: key}))

	sessions := ledger.NewSessionManager(Network, registry, vault, network.Dial, log)
	orch := ledger.NewOrchestrator(sessions, ledger.OrchestratorConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, log)

	tokenID, err := rewards.CreateToken(ctx, orch, rewards.TokenSpec{
		Name:          "Custody Reward",
		Symbol:        "CRW",
		Decimals:      RewardDecimals,
		InitialSupply: 1_000_000,
	})
	require.NoError(t, err)

	engine, err := rewards.NewEngine(registry, registry, registry, vault, orch,
		rewards.Config{TokenID: tokenID, Decimals: RewardDecimals}, log)
	require.NoError(t, err)

	return &Stack{
		Log:      log,
		Network:  network,
		Registry: registry,
		Blobs:    blobs,
		Vault:    vault,
		Ledger:   orch,
		Wallets:  wallet.NewProvisioner(registry, registry, vault, orch, wallet.Config{KeyRef: KeyRef}, log),
		Assets:   assets.NewService(registry, registry, registry, blobs, vault, orch, assets.Config{}, log),
		Rewards:  engine,
		TokenID:  tokenID,
	}
}
