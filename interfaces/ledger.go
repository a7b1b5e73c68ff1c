package interfaces

import (
	"context"
	"fmt"
)

// TxKind names a transaction type for logging and metrics.
type TxKind string

const (
	TxAccountCreate  TxKind = "account_create"
	TxAccountDelete  TxKind = "account_delete"
	TxTokenCreate    TxKind = "token_create"
	TxTokenMint      TxKind = "token_mint"
	TxTokenAssociate TxKind = "token_associate"
	TxTokenTransfer  TxKind = "token_transfer"
)

// Transaction is a ledger transaction spec. The operator account always pays;
// specs carry any additional signing keys they need.
type Transaction interface {
	Kind() TxKind
}

// AccountCreate funds a new account keyed by PublicKey from the operator.
type AccountCreate struct {
	// PublicKey is the hex encoded compressed secp256k1 public key.
	PublicKey string
	// InitialBalance in tinybar.
	InitialBalance int64
	Memo           string
	// Alias is the EVM address of PublicKey. An aliased account can be found
	// by LookupAccount without its receipt. AccountKey must then sign.
	Alias      string
	AccountKey []byte
}

// AccountDelete removes AccountID and moves its balance to TransferAccountID.
type AccountDelete struct {
	AccountID         string
	TransferAccountID string
	// AccountKey is the plaintext private key of AccountID.
	AccountKey []byte
}

// TokenCreate creates a token whose admin and supply keys are the operator's.
type TokenCreate struct {
	Name          string
	Symbol        string
	Memo          string
	NonFungible   bool
	Decimals      uint
	InitialSupply uint64
	// TreasuryAccountID defaults to the operator account.
	TreasuryAccountID string
	// TreasuryKey signs when the treasury is not the operator.
	TreasuryKey []byte
}

// TokenMint mints one NFT per metadata entry, or Amount fungible units.
type TokenMint struct {
	TokenID  string
	Metadata [][]byte
	Amount   uint64
}

// TokenAssociate makes AccountID eligible to hold TokenIDs.
type TokenAssociate struct {
	AccountID  string
	TokenIDs   []string
	AccountKey []byte
}

// TokenTransfer moves fungible units. FromAccountID defaults to the operator.
type TokenTransfer struct {
	TokenID       string
	FromAccountID string
	ToAccountID   string
	Amount        int64
}

func (AccountCreate) Kind() TxKind  { return TxAccountCreate }
func (AccountDelete) Kind() TxKind  { return TxAccountDelete }
func (TokenCreate) Kind() TxKind    { return TxTokenCreate }
func (TokenMint) Kind() TxKind      { return TxTokenMint }
func (TokenAssociate) Kind() TxKind { return TxTokenAssociate }
func (TokenTransfer) Kind() TxKind  { return TxTokenTransfer }

// Receipt is the ledger's confirmation of a transaction.
type Receipt struct {
	TxID          string
	Status        string
	AccountID     string
	TokenID       string
	SerialNumbers []int64
	// AlreadySatisfied is set when the ledger reported that the desired end
	// state already existed.
	AlreadySatisfied bool
}

// AccountBalance is the ledger balance of one account.
type AccountBalance struct {
	AccountID string
	Tinybars  int64
	Tokens    map[string]uint64
}

// LedgerClient is an operator-authenticated session bound to one network.
type LedgerClient interface {
	// Network returns the network the client is bound to.
	Network() string

	// OperatorAccountID returns the paying account.
	OperatorAccountID() string

	// OperatorPublicKey returns the operator key used as admin and supply key.
	OperatorPublicKey() string

	// NewTransactionID allocates a transaction id paid by the operator.
	NewTransactionID() (string, error)

	// Execute signs and submits tx under txID. It returns once the network
	// accepted or refused the submission. Failures are *LedgerError.
	Execute(ctx context.Context, txID string, tx Transaction) error

	// Receipt waits for and returns the receipt of txID. Non-success
	// receipts are reported as *LedgerError.
	Receipt(ctx context.Context, txID string) (*Receipt, error)

	// Balance queries an account's hbar balance and its balance of each of
	// tokenIDs. A missing or deleted account is KindNotFound.
	Balance(ctx context.Context, accountID string, tokenIDs []string) (*AccountBalance, error)

	// LookupAccount returns the live account aliased to evmAddress, or
	// KindNotFound when there is none.
	LookupAccount(ctx context.Context, evmAddress string) (string, error)

	Close() error
}

// LedgerErrorClass drives the orchestrator's retry decision.
type LedgerErrorClass int

const (
	// LedgerClassTransient covers busy, throttled and network failures.
	LedgerClassTransient LedgerErrorClass = iota
	// LedgerClassRejected is a permanent rejection.
	LedgerClassRejected
	// LedgerClassAlreadySatisfied reports the desired end state already exists.
	LedgerClassAlreadySatisfied
	// LedgerClassDuplicate reports that txID was already submitted.
	LedgerClassDuplicate
	// LedgerClassUnknown reports that no receipt is available for txID.
	LedgerClassUnknown
)

func (c LedgerErrorClass) String() string {
	switch c {
	case LedgerClassTransient:
		return "transient"
	case LedgerClassRejected:
		return "rejected"
	case LedgerClassAlreadySatisfied:
		return "already_satisfied"
	case LedgerClassDuplicate:
		return "duplicate"
	case LedgerClassUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// LedgerError is a classified failure reported by a LedgerClient.
type LedgerError struct {
	Class  LedgerErrorClass
	Status string
	TxID   string
	// Refused is set when a node turned the submission away at precheck, so
	// the transaction cannot reach consensus.
	Refused bool
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger %s (%s) for %s: %v", e.Class, e.Status, e.TxID, e.Err)
	}
	return fmt.Sprintf("ledger %s (%s) for %s", e.Class, e.Status, e.TxID)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// TransactionOrchestrator drives transactions through submission and receipt
// with bounded retries. Components borrow the operator session through it.
type TransactionOrchestrator interface {
	// Session returns the operator session transactions are submitted with.
	Session(ctx context.Context) (LedgerClient, error)

	// NewTransactionID allocates an id ahead of submission.
	NewTransactionID(ctx context.Context) (string, error)

	Submit(ctx context.Context, userID string, tx Transaction) (*Receipt, error)

	// SubmitWithID submits tx under an id from NewTransactionID.
	SubmitWithID(ctx context.Context, userID, txID string, tx Transaction) (*Receipt, error)

	// Receipt looks up an earlier transaction without submitting anything.
	Receipt(ctx context.Context, userID, txID string) (*Receipt, error)
}
