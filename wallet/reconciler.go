package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/metrics"
)

const (
	// ReasonOutcomeUnknown is recorded on unresolved wallets.
	ReasonOutcomeUnknown = "outcome unknown"
	// ReasonNotCreated is recorded when a stale marker's account was
	// confirmed absent from the ledger.
	ReasonNotCreated = "account not created"
	// ReasonRefused is recorded when every submission of the account
	// creation was refused before reaching consensus.
	ReasonRefused = "submission refused"
)

// Reconciler settles wallet records left behind by interrupted provisioning.
// Reconcile is idempotent and safe to run concurrently with Provision.
type Reconciler struct {
	wallets interfaces.WalletStore
	keys    interfaces.KeyStore
	ledger  interfaces.TransactionOrchestrator
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

// Reconcile brings the user's wallet record in line with the key registry
// and the ledger:
//   - a stored key with no active record rebuilds the record as active
//   - a pending marker whose account creation succeeded stores the key from
//     the marker and activates it
//   - a pending marker whose account creation was rejected is failed
//   - a pending marker with no receipt past StaleAfter is looked up by its
//     EVM alias: a live account is recovered, a confirmed absence fails the
//     record, anything else leaves it unresolved with the sealed key kept
//
// Unresolved records go through the alias lookup again on every call.
// Active and deleting records are returned unchanged. It returns the
// resulting record, or nil when the user has none.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (*interfaces.WalletRecord, error) {
	log := r.log.With(slog.String("userId", userID))

	rec, err := getWallet(ctx, r.wallets, userID)
	if err != nil {
		return nil, err
	}
	if rec != nil && (rec.Status == interfaces.WalletActive || rec.Status == interfaces.WalletDeleting) {
		return rec, nil
	}

	key, err := r.keys.GetKey(ctx, userID)
	switch {
	case err == nil:
		return r.rebuild(ctx, rec, key, log)
	case !errors.Is(err, interfaces.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to read wallet key: %w", err)
	}

	if rec == nil || (rec.Status != interfaces.WalletPending && rec.Status != interfaces.WalletUnresolved) {
		return rec, nil
	}
	log = log.With(slog.String("txId", rec.PendingTxID))

	if rec.PendingTxID != "" {
		receipt, err := r.ledger.Receipt(ctx, userID, rec.PendingTxID)
		switch {
		case err == nil && receipt.AccountID != "":
			return r.recover(ctx, rec, receipt.AccountID, log)
		case err == nil:
			log.Warn("Account creation receipt carries no account id", slog.String("status", receipt.Status))
			return rec, nil
		case interfaces.KindOf(err) == interfaces.KindLedgerRejected:
			var typed *interfaces.Error
			errors.As(err, &typed)
			metrics.Reconciliation("rejected")
			log.Info("Pending wallet was rejected by the ledger", slog.String("ledgerStatus", typed.LedgerStatus))
			return r.fail(ctx, rec, typed.LedgerStatus)
		}
	}

	if rec.Status == interfaces.WalletPending && r.now().Sub(rec.UpdatedAt) <= r.cfg.StaleAfter {
		return rec, nil
	}
	return r.lookup(ctx, rec, log)
}

// lookup settles a marker whose receipt is gone by searching the ledger for
// the account aliased to the marker's EVM address. StaleAfter exceeds the
// transaction validity window, so an absent account can no longer appear.
func (r *Reconciler) lookup(ctx context.Context, rec *interfaces.WalletRecord, log *slog.Logger) (*interfaces.WalletRecord, error) {
	if rec.EVMAddress == "" {
		return r.unresolved(ctx, rec, errors.New("marker has no alias"), log)
	}
	client, err := r.ledger.Session(ctx)
	if err != nil {
		return r.unresolved(ctx, rec, err, log)
	}

	accountID, err := client.LookupAccount(ctx, rec.EVMAddress)
	switch {
	case err == nil:
		log.Info("Found account by alias", slog.String("accountId", accountID))
		return r.recover(ctx, rec, accountID, log)
	case interfaces.KindOf(err) == interfaces.KindNotFound:
		metrics.Reconciliation("not_created")
		log.Info("Stale pending wallet has no ledger account", slog.Time("pendingSince", rec.UpdatedAt))
		return r.fail(ctx, rec, ReasonNotCreated)
	default:
		return r.unresolved(ctx, rec, err, log)
	}
}

// unresolved parks rec until a later lookup can settle it. The sealed key
// stays on the record.
func (r *Reconciler) unresolved(ctx context.Context, rec *interfaces.WalletRecord, cause error, log *slog.Logger) (*interfaces.WalletRecord, error) {
	if rec.Status == interfaces.WalletUnresolved {
		log.Warn("Wallet outcome still unresolved", "err", cause)
		return rec, nil
	}
	parked := *rec
	parked.Status = interfaces.WalletUnresolved
	parked.FailureReason = ReasonOutcomeUnknown
	parked.UpdatedAt = r.now()
	if err := r.wallets.PutWallet(ctx, &parked); err != nil {
		return nil, fmt.Errorf("failed to record unresolved wallet: %w", err)
	}
	metrics.Reconciliation("unresolved")
	log.Warn("Pending wallet outcome unresolved, sealed key kept",
		"err", cause,
		slog.Time("pendingSince", rec.UpdatedAt))
	return &parked, nil
}

// fail records that rec's account creation produced no account.
func (r *Reconciler) fail(ctx context.Context, rec *interfaces.WalletRecord, reason string) (*interfaces.WalletRecord, error) {
	failed := *rec
	failed.Status = interfaces.WalletFailed
	failed.FailureReason = reason
	failed.PendingKey = nil
	failed.UpdatedAt = r.now()
	if err := r.wallets.PutWallet(ctx, &failed); err != nil {
		return nil, fmt.Errorf("failed to record failed wallet: %w", err)
	}
	return &failed, nil
}

// recover stores the key sealed in the marker and activates the record.
func (r *Reconciler) recover(ctx context.Context, rec *interfaces.WalletRecord, accountID string, log *slog.Logger) (*interfaces.WalletRecord, error) {
	if len(rec.PendingKey) == 0 {
		return nil, interfaces.NewError(interfaces.KindConfiguration, "pending wallet has no sealed key", nil)
	}
	key := &interfaces.KeyRecord{
		UserID:                 rec.UserID,
		LedgerAccountID:        accountID,
		PublicKey:              rec.PublicKey,
		EncryptedPrivateKey:    rec.PendingKey,
		EncryptionKeyReference: r.cfg.KeyRef,
		KeyAlgorithm:           interfaces.KeyAlgorithmECDSASecp256k1,
		CreatedAt:              rec.CreatedAt,
	}
	if err := createKey(ctx, r.keys, key); err != nil {
		return nil, fmt.Errorf("failed to store recovered key: %w", err)
	}

	active := activeRecord(rec, key, r.cfg.InitialBalance, r.now())
	if err := r.wallets.PutWallet(ctx, active); err != nil {
		return nil, fmt.Errorf("failed to activate wallet record: %w", err)
	}
	metrics.Reconciliation("recovered")
	log.Info("Recovered pending wallet", slog.String("accountId", accountID))
	return active, nil
}

// rebuild restores an active record from the stored key and the ledger.
func (r *Reconciler) rebuild(ctx context.Context, rec *interfaces.WalletRecord, key *interfaces.KeyRecord, log *slog.Logger) (*interfaces.WalletRecord, error) {
	if rec == nil {
		rec = &interfaces.WalletRecord{UserID: key.UserID, CreatedAt: key.CreatedAt}
	}
	funded := rec.FundedBalance
	if funded == 0 {
		funded = r.cfg.InitialBalance
	}

	if client, err := r.ledger.Session(ctx); err != nil {
		log.Warn("Rebuilding wallet without ledger session", "err", err)
	} else {
		rec.Network = client.Network()
		if balance, err := client.Balance(ctx, key.LedgerAccountID, nil); err != nil {
			log.Warn("Failed to query balance of rebuilt wallet", "err", err)
		} else {
			funded = balance.Tinybars
		}
	}
	if rec.EVMAddress == "" {
		if addr, err := cryptoutils.EVMAddressFromPublicKey(key.PublicKey); err == nil {
			rec.EVMAddress = addr
		}
	}

	active := activeRecord(rec, key, funded, r.now())
	if err := r.wallets.PutWallet(ctx, active); err != nil {
		return nil, fmt.Errorf("failed to rebuild wallet record: %w", err)
	}
	metrics.Reconciliation("rebuilt")
	log.Info("Rebuilt wallet record from stored key", slog.String("accountId", key.LedgerAccountID))
	return active, nil
}
