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

// Config holds the provisioning parameters.
type Config struct {
	// InitialBalance funds every new account, in tinybar.
	InitialBalance int64
	// KeyRef is the master key reference user keys are sealed under.
	KeyRef string
	// PollInterval is how often a concurrent caller re-reads a pending record.
	PollInterval time.Duration
	// WaitTimeout bounds how long a concurrent caller waits for the winner.
	WaitTimeout time.Duration
	// StaleAfter is the age after which an unresolved pending marker is
	// failed. It must exceed the ledger's transaction validity window.
	StaleAfter time.Duration
}

// DefaultConfig returns the production provisioning parameters.
func DefaultConfig() Config {
	return Config{
		InitialBalance: 100_000_000,
		KeyRef:         "wallet-keys",
		PollInterval:   500 * time.Millisecond,
		WaitTimeout:    15 * time.Second,
		StaleAfter:     3 * time.Minute,
	}
}

// Provisioner implements interfaces.WalletProvisioner against the ledger.
//
// A user owns at most one ledger identity. The pending marker written with
// CreatePendingWallet is the only lock; whoever writes it submits the account
// creation, everyone else waits for the record to settle.
type Provisioner struct {
	wallets    interfaces.WalletStore
	keys       interfaces.KeyStore
	vault      interfaces.CredentialVault
	ledger     interfaces.TransactionOrchestrator
	reconciler *Reconciler
	cfg        Config
	log        *slog.Logger
	now        func() time.Time
}

// NewProvisioner creates a provisioner.
//
// Parameters:
//   - wallets: wallet-metadata registry
//   - keys: wallet-keys registry
//   - vault: seals the generated private keys
//   - ledger: orchestrator submitting account transactions
//   - cfg: provisioning parameters, zero fields take DefaultConfig values
//   - log: structured logger
func NewProvisioner(wallets interfaces.WalletStore, keys interfaces.KeyStore, vault interfaces.CredentialVault, ledger interfaces.TransactionOrchestrator, cfg Config, log *slog.Logger) *Provisioner {
	defaults := DefaultConfig()
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = defaults.InitialBalance
	}
	if cfg.KeyRef == "" {
		cfg.KeyRef = defaults.KeyRef
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaults.WaitTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}

	p := &Provisioner{
		wallets: wallets,
		keys:    keys,
		vault:   vault,
		ledger:  ledger,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
	p.reconciler = &Reconciler{
		wallets: wallets,
		keys:    keys,
		ledger:  ledger,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return p.now() },
	}
	return p
}

// Reconciler returns the reconciler sharing this provisioner's registries.
func (p *Provisioner) Reconciler() *Reconciler {
	return p.reconciler
}

// Provision returns the subject's active wallet, creating it on first use.
func (p *Provisioner) Provision(ctx context.Context, subject interfaces.AuthenticatedSubject) (*interfaces.WalletRecord, error) {
	if subject.UserID == "" {
		return nil, interfaces.NewError(interfaces.KindUnauthorized, "missing subject", nil)
	}
	log := p.log.With(slog.String("userId", subject.UserID))

	rec, err := getWallet(ctx, p.wallets, subject.UserID)
	if err != nil {
		return nil, err
	}

	if rec != nil && p.needsReconcile(rec) {
		log.Info("Reconciling unsettled wallet",
			slog.String("status", string(rec.Status)),
			slog.String("txId", rec.PendingTxID))
		reconciled, err := p.reconciler.Reconcile(ctx, subject.UserID)
		if err != nil {
			log.Warn("Failed to reconcile wallet", "err", err)
		} else if reconciled != nil {
			rec = reconciled
		}
	}

	if rec != nil {
		switch rec.Status {
		case interfaces.WalletActive:
			metrics.Provisioning("existing")
			return rec, nil
		case interfaces.WalletPending:
			return p.await(ctx, subject.UserID)
		case interfaces.WalletFailed:
			// Only definite failures are failed, so a new attempt cannot
			// produce a second account.
		default:
			return nil, settleError(rec)
		}
	}

	return p.create(ctx, subject, log)
}

func (p *Provisioner) needsReconcile(rec *interfaces.WalletRecord) bool {
	switch rec.Status {
	case interfaces.WalletUnresolved:
		return true
	case interfaces.WalletPending:
		return p.now().Sub(rec.UpdatedAt) > p.cfg.StaleAfter
	default:
		return false
	}
}

// settleError reports why a wallet that is not active cannot be used yet.
func settleError(rec *interfaces.WalletRecord) error {
	switch rec.Status {
	case interfaces.WalletUnresolved:
		return &interfaces.Error{
			Kind:    interfaces.KindOutcomeUnknown,
			Message: "wallet creation outcome is not known yet",
			TxID:    rec.PendingTxID,
		}
	case interfaces.WalletDeleting:
		return interfaces.NewError(interfaces.KindInProgress, "wallet deletion is in progress", nil)
	case interfaces.WalletFailed:
		if rec.FailureReason == ReasonRefused {
			return &interfaces.Error{
				Kind:    interfaces.KindLedgerTransient,
				Message: "ledger network is unavailable",
				TxID:    rec.PendingTxID,
				Refused: true,
			}
		}
		return &interfaces.Error{
			Kind:         interfaces.KindLedgerRejected,
			Message:      "wallet provisioning failed: " + rec.FailureReason,
			LedgerStatus: rec.FailureReason,
			TxID:         rec.PendingTxID,
		}
	default:
		return interfaces.NewError(interfaces.KindInProgress, "wallet creation is still in progress", nil)
	}
}

func (p *Provisioner) create(ctx context.Context, subject interfaces.AuthenticatedSubject, log *slog.Logger) (*interfaces.WalletRecord, error) {
	kp, err := cryptoutils.GenerateLedgerKeypair()
	if err != nil {
		return nil, interfaces.NewError(interfaces.KindCrypto, "failed to generate keypair", err)
	}
	defer cryptoutils.Zero(kp.PrivateKey)

	sealed, err := p.vault.Encrypt(ctx, kp.PrivateKey, p.cfg.KeyRef)
	if err != nil {
		return nil, err
	}

	client, err := p.ledger.Session(ctx)
	if err != nil {
		return nil, err
	}
	txID, err := p.ledger.NewTransactionID(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	marker := &interfaces.WalletRecord{
		UserID:      subject.UserID,
		Email:       subject.Email,
		PublicKey:   kp.PublicKey,
		EVMAddress:  kp.EVMAddress,
		Network:     client.Network(),
		Status:      interfaces.WalletPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		PendingTxID: txID,
		PendingKey:  sealed,
	}
	if err := p.wallets.CreatePendingWallet(ctx, marker); err != nil {
		if errors.Is(err, interfaces.ErrConditionFailed) {
			log.Debug("Lost provisioning race, waiting for the winner")
			metrics.Provisioning("contended")
			return p.await(ctx, subject.UserID)
		}
		return nil, fmt.Errorf("failed to write pending wallet: %w", err)
	}
	log = log.With(slog.String("txId", txID))
	log.Info("Creating ledger account", slog.String("publicKey", kp.PublicKey))

	receipt, err := p.ledger.SubmitWithID(ctx, subject.UserID, txID, interfaces.AccountCreate{
		PublicKey:      kp.PublicKey,
		InitialBalance: p.cfg.InitialBalance,
		Alias:          kp.EVMAddress,
		AccountKey:     kp.PrivateKey,
	})
	if err != nil {
		return nil, p.submitFailed(ctx, marker, err, log)
	}

	key := &interfaces.KeyRecord{
		UserID:                 subject.UserID,
		LedgerAccountID:        receipt.AccountID,
		PublicKey:              kp.PublicKey,
		EncryptedPrivateKey:    sealed,
		EncryptionKeyReference: p.cfg.KeyRef,
		KeyAlgorithm:           interfaces.KeyAlgorithmECDSASecp256k1,
		CreatedAt:              now,
	}
	if err := createKey(ctx, p.keys, key); err != nil {
		// The marker still holds the sealed key and the transaction id.
		log.Error("Failed to persist wallet key, leaving marker for reconciliation",
			"err", err,
			slog.String("accountId", receipt.AccountID))
		metrics.Provisioning("key_deferred")
		return nil, &interfaces.Error{
			Kind:    interfaces.KindInProgress,
			Message: "wallet created, records are being finalized",
			TxID:    txID,
			Err:     err,
		}
	}

	active := activeRecord(marker, key, p.cfg.InitialBalance, p.now())
	if err := p.wallets.PutWallet(ctx, active); err != nil {
		log.Error("Failed to activate wallet record, leaving marker for reconciliation",
			"err", err,
			slog.String("accountId", receipt.AccountID))
		metrics.Provisioning("metadata_deferred")
		return active, nil
	}

	metrics.Provisioning("created")
	log.Info("Wallet provisioned", slog.String("accountId", receipt.AccountID))
	return active, nil
}

// submitFailed settles the marker after a failed account creation.
func (p *Provisioner) submitFailed(ctx context.Context, marker *interfaces.WalletRecord, err error, log *slog.Logger) error {
	var typed *interfaces.Error
	errors.As(err, &typed)

	switch kind := interfaces.KindOf(err); {
	case kind == interfaces.KindLedgerRejected:
		if _, perr := p.reconciler.fail(ctx, marker, typed.LedgerStatus); perr != nil {
			log.Error("Failed to record failed wallet", "err", perr)
		}
		metrics.Provisioning("rejected")
		return err
	case kind == interfaces.KindLedgerTransient && typed.Refused:
		// No submission reached a node; the account cannot exist.
		if _, perr := p.reconciler.fail(ctx, marker, ReasonRefused); perr != nil {
			log.Error("Failed to record failed wallet", "err", perr)
		}
		log.Warn("Account creation refused by every node", "err", err)
		metrics.Provisioning("refused")
		return err
	case kind == interfaces.KindOutcomeUnknown:
		log.Warn("Account creation outcome unknown, leaving marker pending", "err", err)
		metrics.Provisioning("unknown")
		return &interfaces.Error{
			Kind:    interfaces.KindInProgress,
			Message: "wallet creation is still in progress",
			TxID:    marker.PendingTxID,
			Err:     err,
		}
	default:
		// The last attempt may still land, so the marker stays until the
		// reconciler finds a receipt or it goes stale.
		log.Warn("Account creation failed, leaving marker pending", "err", err)
		metrics.Provisioning("error")
		return err
	}
}

// await polls the record until the concurrent attempt settles.
func (p *Provisioner) await(ctx context.Context, userID string) (*interfaces.WalletRecord, error) {
	timeout := time.NewTimer(p.cfg.WaitTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		rec, err := getWallet(ctx, p.wallets, userID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			switch rec.Status {
			case interfaces.WalletActive:
				return rec, nil
			case interfaces.WalletPending:
			default:
				return nil, settleError(rec)
			}
		}

		select {
		case <-ctx.Done():
			return nil, interfaces.NewError(interfaces.KindInProgress, "wallet creation is still in progress", ctx.Err())
		case <-timeout.C:
			metrics.Provisioning("wait_timeout")
			return nil, interfaces.NewError(interfaces.KindInProgress, "wallet creation is still in progress", nil)
		case <-ticker.C:
		}
	}
}

// Status returns the user's wallet, or nil when none exists. Pending and
// unresolved records are reconciled first.
func (p *Provisioner) Status(ctx context.Context, userID string) (*interfaces.WalletRecord, error) {
	rec, err := getWallet(ctx, p.wallets, userID)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.Status != interfaces.WalletPending && rec.Status != interfaces.WalletUnresolved {
		return rec, nil
	}

	reconciled, err := p.reconciler.Reconcile(ctx, userID)
	if err != nil {
		p.log.Warn("Failed to reconcile pending wallet",
			"err", err,
			slog.String("userId", userID))
		return rec, nil
	}
	return reconciled, nil
}

// Balance returns the hbar and associated token balances of the user's wallet.
func (p *Provisioner) Balance(ctx context.Context, userID string) (*interfaces.AccountBalance, error) {
	rec, err := ActiveWallet(ctx, p.wallets, userID)
	if err != nil {
		return nil, err
	}
	client, err := p.ledger.Session(ctx)
	if err != nil {
		return nil, err
	}
	return client.Balance(ctx, rec.LedgerAccountID, rec.AssociatedTokens)
}

// Delete closes the user's account, returning its remaining hbar to the
// operator, then removes the key and wallet records.
//
// The record is marked deleting before anything is submitted, so a delete
// interrupted at any point is finished by calling Delete again. A rejected
// deletion restores the active record.
func (p *Provisioner) Delete(ctx context.Context, subject interfaces.AuthenticatedSubject) (string, error) {
	rec, err := getWallet(ctx, p.wallets, subject.UserID)
	if err != nil {
		return "", err
	}
	if rec == nil || (rec.Status != interfaces.WalletActive && rec.Status != interfaces.WalletDeleting) {
		return "", interfaces.NewError(interfaces.KindNotFound, "no active wallet", nil)
	}
	log := p.log.With(
		slog.String("userId", subject.UserID),
		slog.String("accountId", rec.LedgerAccountID))

	client, err := p.ledger.Session(ctx)
	if err != nil {
		return "", err
	}

	deleting := rec
	if rec.Status == interfaces.WalletActive {
		txID, err := p.ledger.NewTransactionID(ctx)
		if err != nil {
			return "", err
		}
		marked := *rec
		marked.Status = interfaces.WalletDeleting
		marked.PendingTxID = txID
		marked.UpdatedAt = p.now()
		if err := p.wallets.PutWallet(ctx, &marked); err != nil {
			return "", fmt.Errorf("failed to mark wallet for deletion: %w", err)
		}
		deleting = &marked
	} else {
		log.Info("Resuming wallet deletion", slog.String("txId", rec.PendingTxID))
	}
	log = log.With(slog.String("txId", deleting.PendingTxID))

	_, err = client.Balance(ctx, deleting.LedgerAccountID, nil)
	switch {
	case err == nil:
		if err := p.deleteAccount(ctx, subject.UserID, deleting, client.OperatorAccountID(), log); err != nil {
			return "", err
		}
	case interfaces.KindOf(err) == interfaces.KindNotFound:
		log.Info("Ledger account already deleted")
	default:
		return "", err
	}

	if err := p.keys.DeleteKey(ctx, subject.UserID); err != nil && !errors.Is(err, interfaces.ErrRecordNotFound) {
		log.Error("Failed to delete wallet key", "err", err)
		return "", fmt.Errorf("failed to delete wallet key: %w", err)
	}
	if err := p.wallets.DeleteWallet(ctx, subject.UserID); err != nil && !errors.Is(err, interfaces.ErrRecordNotFound) {
		log.Error("Failed to delete wallet record", "err", err)
		return "", fmt.Errorf("failed to delete wallet record: %w", err)
	}

	metrics.Provisioning("deleted")
	log.Info("Wallet deleted")
	return deleting.PendingTxID, nil
}

// deleteAccount submits the AccountDelete recorded on the deleting record.
// Failures that leave the account untouched restore the active record.
func (p *Provisioner) deleteAccount(ctx context.Context, userID string, rec *interfaces.WalletRecord, transferTo string, log *slog.Logger) error {
	plaintext, err := UnsealUserKey(ctx, p.keys, p.vault, userID)
	if err != nil {
		p.restoreActive(ctx, rec, log)
		return err
	}
	defer cryptoutils.Zero(plaintext)

	_, err = p.ledger.SubmitWithID(ctx, userID, rec.PendingTxID, interfaces.AccountDelete{
		AccountID:         rec.LedgerAccountID,
		TransferAccountID: transferTo,
		AccountKey:        plaintext,
	})
	var typed *interfaces.Error
	if err != nil && errors.As(err, &typed) && (typed.Kind == interfaces.KindLedgerRejected || typed.Refused) {
		p.restoreActive(ctx, rec, log)
	}
	return err
}

func (p *Provisioner) restoreActive(ctx context.Context, rec *interfaces.WalletRecord, log *slog.Logger) {
	restored := *rec
	restored.Status = interfaces.WalletActive
	restored.PendingTxID = ""
	restored.UpdatedAt = p.now()
	if err := p.wallets.PutWallet(ctx, &restored); err != nil {
		log.Error("Failed to restore wallet after aborted deletion", "err", err)
	}
}

// ActiveWallet returns the user's wallet if it is active, and KindNotFound
// otherwise.
func ActiveWallet(ctx context.Context, wallets interfaces.WalletStore, userID string) (*interfaces.WalletRecord, error) {
	rec, err := getWallet(ctx, wallets, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Status != interfaces.WalletActive {
		return nil, interfaces.NewError(interfaces.KindNotFound, "no active wallet", nil)
	}
	return rec, nil
}

// UnsealUserKey decrypts the user's private key. Callers must Zero the result.
func UnsealUserKey(ctx context.Context, keys interfaces.KeyStore, vault interfaces.CredentialVault, userID string) ([]byte, error) {
	key, err := keys.GetKey(ctx, userID)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, interfaces.NewError(interfaces.KindNotFound, "wallet key not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet key: %w", err)
	}
	return vault.Decrypt(ctx, key.EncryptedPrivateKey, key.EncryptionKeyReference)
}

func getWallet(ctx context.Context, wallets interfaces.WalletStore, userID string) (*interfaces.WalletRecord, error) {
	rec, err := wallets.GetWallet(ctx, userID)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet record: %w", err)
	}
	return rec, nil
}

// createKey writes key unless an identical key is already stored.
func createKey(ctx context.Context, keys interfaces.KeyStore, key *interfaces.KeyRecord) error {
	err := keys.CreateKey(ctx, key)
	if !errors.Is(err, interfaces.ErrConditionFailed) {
		return err
	}
	existing, gerr := keys.GetKey(ctx, key.UserID)
	if gerr != nil {
		return gerr
	}
	if existing.PublicKey != key.PublicKey || existing.LedgerAccountID != key.LedgerAccountID {
		return fmt.Errorf("a different key is already stored for %s: %w", key.UserID, err)
	}
	return nil
}

func activeRecord(base *interfaces.WalletRecord, key *interfaces.KeyRecord, funded int64, now time.Time) *interfaces.WalletRecord {
	rec := *base
	rec.Status = interfaces.WalletActive
	rec.LedgerAccountID = key.LedgerAccountID
	rec.PublicKey = key.PublicKey
	rec.FundedBalance = funded
	rec.PendingTxID = ""
	rec.PendingKey = nil
	rec.FailureReason = ""
	rec.UpdatedAt = now
	return &rec
}
