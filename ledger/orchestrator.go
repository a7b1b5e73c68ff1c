package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OrchestratorConfig bounds the retry behaviour of the orchestrator.
type OrchestratorConfig struct {
	// MaxAttempts is the attempt ceiling for one transaction, submissions
	// and receipt lookups combined.
	MaxAttempts int
	// InitialBackoff is the delay after the first transient failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
}

// DefaultOrchestratorConfig returns the production retry policy.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
	}
}

// Orchestrator drives ledger transactions through submission and receipt,
// retrying transient failures with exponential backoff.
type Orchestrator struct {
	sessions SessionProvider
	cfg      OrchestratorConfig
	log      *slog.Logger
	tracer   trace.Tracer
}

// NewOrchestrator creates an orchestrator borrowing sessions from sessions.
func NewOrchestrator(sessions SessionProvider, cfg OrchestratorConfig, log *slog.Logger) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultOrchestratorConfig().MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultOrchestratorConfig().InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &Orchestrator{
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		tracer:   otel.Tracer("github.com/ruteri/custodial-wallet-backend/ledger"),
	}
}

// Session returns the operator session the orchestrator submits with.
func (o *Orchestrator) Session(ctx context.Context) (interfaces.LedgerClient, error) {
	return o.sessions.Session(ctx)
}

// NewTransactionID allocates a transaction id ahead of submission, so callers
// can record it before the transaction reaches the ledger.
func (o *Orchestrator) NewTransactionID(ctx context.Context) (string, error) {
	client, err := o.sessions.Session(ctx)
	if err != nil {
		return "", err
	}
	txID, err := client.NewTransactionID()
	if err != nil {
		return "", interfaces.NewError(interfaces.KindConfiguration, "failed to allocate transaction id", err)
	}
	return txID, nil
}

// Submit signs and submits tx on behalf of userID and waits for its receipt.
func (o *Orchestrator) Submit(ctx context.Context, userID string, tx interfaces.Transaction) (*interfaces.Receipt, error) {
	return o.SubmitWithID(ctx, userID, "", tx)
}

// SubmitWithID is Submit with a transaction id allocated by NewTransactionID.
//
// The id is reused for every resubmission. A duplicate-id answer to a
// resubmission therefore means an earlier attempt reached the ledger, and the
// orchestrator switches to waiting for that attempt's receipt. Once the
// transaction may have reached the ledger it is never submitted under a new id;
// if no receipt can be obtained the result is KindOutcomeUnknown.
func (o *Orchestrator) SubmitWithID(ctx context.Context, userID, txID string, tx interfaces.Transaction) (*interfaces.Receipt, error) {
	client, err := o.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	if txID == "" {
		if txID, err = client.NewTransactionID(); err != nil {
			return nil, interfaces.NewError(interfaces.KindConfiguration, "failed to allocate transaction id", err)
		}
	}

	kind := string(tx.Kind())
	ctx, span := o.tracer.Start(ctx, "ledger.submit", trace.WithAttributes(
		attribute.String("ledger.tx.kind", kind),
		attribute.String("ledger.tx.id", txID),
		attribute.String("ledger.network", client.Network()),
	))
	defer span.End()

	log := o.log.With(
		slog.String("userId", userID),
		slog.String("txId", txID),
		slog.String("kind", kind))
	start := time.Now()

	var (
		submitted bool
		// reached is set once any submission may have reached a node.
		reached bool
		attempt int
		receipt *interfaces.Receipt
	)

	operation := func() error {
		attempt++
		if !submitted {
			err := client.Execute(ctx, txID, tx)
			lerr := asLedgerError(err)
			if err != nil && (lerr == nil || !lerr.Refused) {
				reached = true
			}
			switch {
			case err == nil:
				submitted = true
				log.Debug("Transaction submitted", slog.Int("attempt", attempt))
			case lerr == nil || lerr.Class == interfaces.LedgerClassTransient || lerr.Class == interfaces.LedgerClassUnknown:
				return err
			case lerr.Class == interfaces.LedgerClassDuplicate && attempt > 1:
				log.Info("Earlier submission reached the ledger, awaiting its receipt")
				submitted = true
			case lerr.Class == interfaces.LedgerClassAlreadySatisfied:
				receipt = &interfaces.Receipt{TxID: txID, Status: lerr.Status, AlreadySatisfied: true}
				return nil
			default:
				return backoff.Permanent(rejection(lerr, txID))
			}
		}

		r, err := client.Receipt(ctx, txID)
		if err == nil {
			receipt = r
			return nil
		}
		switch lerr := asLedgerError(err); {
		case lerr == nil || lerr.Class == interfaces.LedgerClassTransient || lerr.Class == interfaces.LedgerClassUnknown:
			return err
		case lerr.Class == interfaces.LedgerClassAlreadySatisfied:
			receipt = &interfaces.Receipt{TxID: txID, Status: lerr.Status, AlreadySatisfied: true}
			return nil
		default:
			return backoff.Permanent(rejection(lerr, txID))
		}
	}

	notify := func(err error, delay time.Duration) {
		metrics.LedgerRetry(kind)
		log.Warn("Transient ledger failure, retrying",
			"err", err,
			slog.Int("attempt", attempt),
			slog.Bool("submitted", submitted),
			slog.Duration("backoff", delay))
	}

	err = backoff.RetryNotify(operation, o.newBackOff(ctx), notify)
	if err == nil {
		outcome := "success"
		if receipt.AlreadySatisfied {
			outcome = "already_satisfied"
		}
		metrics.LedgerSubmission(kind, outcome, time.Since(start))
		log.Info("Ledger transaction completed",
			slog.String("status", receipt.Status),
			slog.Bool("alreadySatisfied", receipt.AlreadySatisfied),
			slog.Int("attempts", attempt),
			slog.Duration("duration", time.Since(start)))
		return receipt, nil
	}

	var typed *interfaces.Error
	if !errors.As(err, &typed) {
		if submitted {
			typed = &interfaces.Error{
				Kind:    interfaces.KindOutcomeUnknown,
				Message: "transaction outcome is not known yet",
				TxID:    txID,
				Err:     err,
			}
		} else {
			typed = &interfaces.Error{
				Kind:    interfaces.KindLedgerTransient,
				Message: "ledger network is unavailable",
				TxID:    txID,
				Refused: !reached,
				Err:     err,
			}
		}
	}

	metrics.LedgerSubmission(kind, string(typed.Kind), time.Since(start))
	span.SetStatus(codes.Error, string(typed.Kind))
	span.RecordError(err)
	log.Error("Ledger transaction failed",
		"err", err,
		slog.String("errorKind", string(typed.Kind)),
		slog.String("ledgerStatus", typed.LedgerStatus),
		slog.Int("attempts", attempt),
		slog.Duration("duration", time.Since(start)))
	return nil, typed
}

// Receipt looks up the receipt of an earlier transaction. It never submits.
func (o *Orchestrator) Receipt(ctx context.Context, userID, txID string) (*interfaces.Receipt, error) {
	client, err := o.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}

	var receipt *interfaces.Receipt
	operation := func() error {
		r, err := client.Receipt(ctx, txID)
		if err == nil {
			receipt = r
			return nil
		}
		switch lerr := asLedgerError(err); {
		case lerr == nil || lerr.Class == interfaces.LedgerClassTransient:
			return err
		case lerr.Class == interfaces.LedgerClassUnknown:
			return backoff.Permanent(&interfaces.Error{
				Kind:    interfaces.KindOutcomeUnknown,
				Message: "no receipt available for transaction",
				TxID:    txID,
				Err:     err,
			})
		case lerr.Class == interfaces.LedgerClassAlreadySatisfied:
			receipt = &interfaces.Receipt{TxID: txID, Status: lerr.Status, AlreadySatisfied: true}
			return nil
		default:
			return backoff.Permanent(rejection(lerr, txID))
		}
	}

	err = backoff.Retry(operation, o.newBackOff(ctx))
	if err != nil {
		var typed *interfaces.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		o.log.Warn("Receipt lookup failed", "err", err, slog.String("userId", userID), slog.String("txId", txID))
		return nil, &interfaces.Error{Kind: interfaces.KindOutcomeUnknown, Message: "transaction outcome is not known yet", TxID: txID, Err: err}
	}
	return receipt, nil
}

func (o *Orchestrator) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.InitialBackoff
	b.MaxInterval = o.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxAttempts-1)), ctx)
}

func asLedgerError(err error) *interfaces.LedgerError {
	var lerr *interfaces.LedgerError
	if errors.As(err, &lerr) {
		return lerr
	}
	return nil
}

func rejection(lerr *interfaces.LedgerError, txID string) *interfaces.Error {
	return &interfaces.Error{
		Kind:         interfaces.KindLedgerRejected,
		Message:      "ledger rejected transaction: " + lerr.Status,
		LedgerStatus: lerr.Status,
		TxID:         txID,
		Err:          lerr,
	}
}
