package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/metrics"
	"github.com/ruteri/custodial-wallet-backend/wallet"
)

const (
	DefaultMaxMultiplier = 100
	DefaultRetention     = 400 * 24 * time.Hour
	DefaultHistoryLimit  = 50
	MaxHistoryLimit      = 500
)

// Config configures the reward engine.
type Config struct {
	// TokenID is the utility token paid out from the operator's treasury.
	TokenID string
	// Decimals of TokenID.
	Decimals uint
	// Schedule defaults to DefaultSchedule.
	Schedule      Schedule
	MaxMultiplier int64
	// Retention is how long ledger entries are kept for audit.
	Retention time.Duration
}

// Engine issues utility-token rewards and records them in the reward ledger.
//
// Issuance is not idempotent: every call transfers tokens, so callers must
// fire exactly once per business event.
type Engine struct {
	wallets interfaces.WalletStore
	keys    interfaces.KeyStore
	rewards interfaces.RewardLedger
	vault   interfaces.CredentialVault
	ledger  interfaces.TransactionOrchestrator
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

// NewEngine validates cfg and creates the engine.
func NewEngine(wallets interfaces.WalletStore, keys interfaces.KeyStore, rewards interfaces.RewardLedger, vault interfaces.CredentialVault, ledger interfaces.TransactionOrchestrator, cfg Config, log *slog.Logger) (*Engine, error) {
	if cfg.TokenID == "" {
		return nil, interfaces.NewError(interfaces.KindConfiguration, "reward token is not configured", nil)
	}
	if cfg.Schedule == nil {
		cfg.Schedule = DefaultSchedule()
	}
	if cfg.MaxMultiplier <= 0 {
		cfg.MaxMultiplier = DefaultMaxMultiplier
	}
	if err := cfg.Schedule.Validate(cfg.Decimals, cfg.MaxMultiplier); err != nil {
		return nil, interfaces.NewError(interfaces.KindConfiguration, "invalid reward schedule", err)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	return &Engine{
		wallets: wallets,
		keys:    keys,
		rewards: rewards,
		vault:   vault,
		ledger:  ledger,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}, nil
}

// Reward transfers the reward for eventType times multiplier to the subject's
// wallet and appends it to the reward ledger.
func (e *Engine) Reward(ctx context.Context, subject interfaces.AuthenticatedSubject, eventType string, multiplier int64, metadata map[string]string) (*interfaces.RewardLedgerEntry, error) {
	eventType = strings.ToUpper(strings.TrimSpace(eventType))
	if multiplier < 1 || multiplier > e.cfg.MaxMultiplier {
		return nil, interfaces.NewError(interfaces.KindInvalidArgument,
			fmt.Sprintf("amount must be between 1 and %d", e.cfg.MaxMultiplier), nil)
	}
	amount, ok := e.cfg.Schedule.Amount(eventType, multiplier)
	if !ok {
		return nil, interfaces.NewError(interfaces.KindInvalidArgument, "unknown event type "+eventType, nil)
	}
	raw := amount.Shift(int32(e.cfg.Decimals)).IntPart()

	w, err := wallet.ActiveWallet(ctx, e.wallets, subject.UserID)
	if err != nil {
		return nil, err
	}
	log := e.log.With(
		slog.String("userId", subject.UserID),
		slog.String("eventType", eventType),
		slog.String("accountId", w.LedgerAccountID))

	if err := e.ensureAssociated(ctx, subject.UserID, w, log); err != nil {
		return nil, err
	}

	receipt, err := e.ledger.Submit(ctx, subject.UserID, interfaces.TokenTransfer{
		TokenID:     e.cfg.TokenID,
		ToAccountID: w.LedgerAccountID,
		Amount:      raw,
	})
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := e.now().UTC()
	entry := &interfaces.RewardLedgerEntry{
		RewardID:   id.String(),
		UserID:     subject.UserID,
		EventType:  eventType,
		Multiplier: multiplier,
		Amount:     amount.String(),
		RawAmount:  raw,
		TokenID:    e.cfg.TokenID,
		TxID:       receipt.TxID,
		Metadata:   metadata,
		Timestamp:  now,
		ExpiresAt:  now.Add(e.cfg.Retention),
	}
	if err := e.rewards.AppendReward(ctx, entry); err != nil {
		// The transfer has settled, so the reward is returned regardless.
		log.Error("Failed to record issued reward",
			"err", err,
			slog.String("rewardId", entry.RewardID),
			slog.String("txId", receipt.TxID),
			slog.Int64("rawAmount", raw))
	}

	metrics.RewardIssued(eventType)
	log.Info("Reward issued",
		slog.String("rewardId", entry.RewardID),
		slog.String("amount", entry.Amount),
		slog.String("txId", receipt.TxID))
	return entry, nil
}

// ensureAssociated associates the reward token with the user's account once
// and records the association on the wallet.
func (e *Engine) ensureAssociated(ctx context.Context, userID string, w *interfaces.WalletRecord, log *slog.Logger) error {
	if w.IsAssociated(e.cfg.TokenID) {
		return nil
	}

	userKey, err := wallet.UnsealUserKey(ctx, e.keys, e.vault, userID)
	if err != nil {
		return err
	}
	defer cryptoutils.Zero(userKey)

	receipt, err := e.ledger.Submit(ctx, userID, interfaces.TokenAssociate{
		AccountID:  w.LedgerAccountID,
		TokenIDs:   []string{e.cfg.TokenID},
		AccountKey: userKey,
	})
	if err != nil {
		return err
	}
	log.Info("Reward token associated",
		slog.String("tokenId", e.cfg.TokenID),
		slog.Bool("alreadyAssociated", receipt.AlreadySatisfied))

	// Re-read so concurrent updates to the record are kept.
	latest, err := wallet.ActiveWallet(ctx, e.wallets, userID)
	if err != nil {
		latest = w
	}
	if !latest.IsAssociated(e.cfg.TokenID) {
		latest.AssociatedTokens = append(latest.AssociatedTokens, e.cfg.TokenID)
		latest.UpdatedAt = e.now()
		if err := e.wallets.PutWallet(ctx, latest); err != nil {
			log.Warn("Failed to record token association", "err", err)
		}
	}
	return nil
}

// History returns the user's rewards, newest first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]*interfaces.RewardLedgerEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	entries, err := e.rewards.ListRewards(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return entries, nil
}

// Schedule returns the configured rates.
func (e *Engine) Schedule() Schedule {
	return e.cfg.Schedule
}
