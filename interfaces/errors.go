package interfaces

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for retry decisions and response mapping.
type ErrorKind string

const (
	KindConfiguration       ErrorKind = "CONFIGURATION_ERROR"
	KindCrypto              ErrorKind = "CRYPTO_FAILURE"
	KindLedgerTransient     ErrorKind = "LEDGER_UNAVAILABLE"
	KindLedgerRejected      ErrorKind = "LEDGER_REJECTED"
	KindAlreadySatisfied    ErrorKind = "ALREADY_SATISFIED"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindOperatorUnavailable ErrorKind = "OPERATOR_UNAVAILABLE"
	KindInvalidArgument     ErrorKind = "INVALID_ARGUMENT"
	KindInProgress          ErrorKind = "PROVISIONING_IN_PROGRESS"
	KindOutcomeUnknown      ErrorKind = "OUTCOME_UNKNOWN"
)

// Error is the typed error raised by every component.
//
// Message is safe to show to API clients. Err holds the internal cause and is
// only ever logged.
type Error struct {
	Kind    ErrorKind
	Message string

	// LedgerStatus is the ledger's rejection reason, if any.
	LedgerStatus string
	// TxID is the transaction the failure relates to, if any.
	TxID string
	// Refused reports that no submission of TxID reached the ledger.
	Refused bool

	Err error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels, so errors.Is(err, ErrNotFound) holds for any
// *Error of kind KindNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Kind sentinels for errors.Is.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrCryptoFailure       = &Error{Kind: KindCrypto}
	ErrLedgerTransient     = &Error{Kind: KindLedgerTransient}
	ErrLedgerRejected      = &Error{Kind: KindLedgerRejected}
	ErrAlreadySatisfied    = &Error{Kind: KindAlreadySatisfied}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrOperatorUnavailable = &Error{Kind: KindOperatorUnavailable}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrInProgress          = &Error{Kind: KindInProgress}
	ErrOutcomeUnknown      = &Error{Kind: KindOutcomeUnknown}
)

// NewError creates a typed error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or an empty
// kind when err is not typed.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Registry errors, reported by WalletStore, KeyStore, AssetStore and RewardLedger.
var (
	// ErrRecordNotFound is returned when no record exists under the requested key.
	ErrRecordNotFound = errors.New("record not found")

	// ErrConditionFailed is returned when a conditional write finds an existing record.
	ErrConditionFailed = errors.New("conditional write failed")
)
