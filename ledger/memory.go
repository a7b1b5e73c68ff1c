package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// FailureMode selects how an injected failure manifests.
type FailureMode int

const (
	// FailTransient refuses the submission with BUSY. Nothing is applied.
	FailTransient FailureMode = iota
	// FailLostResponse applies the transaction but reports BUSY to the caller.
	FailLostResponse
	// FailReject refuses the submission with the failure's Status.
	FailReject
	// FailReceiptUnknown applies the transaction but hides its receipt until
	// RevealReceipts is called.
	FailReceiptUnknown
)

// Failure is queued with InjectFailure and consumed by the next matching
// submission.
type Failure struct {
	// Kind restricts the failure to one transaction kind. Empty matches all.
	Kind   interfaces.TxKind
	Mode   FailureMode
	Status string
}

type memAccount struct {
	publicKey  string
	tinybars   int64
	tokens     map[string]int64
	associated map[string]bool
	deleted    bool
}

type memToken struct {
	nonFungible bool
	treasury    string
	supply      int64
	nextSerial  int64
	owners      map[int64]string
	metadata    map[int64][]byte
}

type memReceipt struct {
	receipt *interfaces.Receipt
	class   interfaces.LedgerErrorClass
	status  string
	failed  bool
	hidden  bool
}

// MemoryNetwork is an in-process ledger with the transaction semantics the
// services rely on. It backs the test suites and the server's memory mode.
type MemoryNetwork struct {
	name string

	mu          sync.Mutex
	operatorID  string
	operatorKey []byte
	nextEntity  int64
	accounts    map[string]*memAccount
	tokens      map[string]*memToken
	receipts    map[string]*memReceipt
	aliases     map[string]string
	failures    []Failure
	submissions map[interfaces.TxKind]int
	lookupDown  bool
}

// NewMemoryNetwork creates a network named name whose operator account holds
// operatorTinybars.
func NewMemoryNetwork(name string, operatorTinybars int64) (*MemoryNetwork, error) {
	kp, err := cryptoutils.GenerateLedgerKeypair()
	if err != nil {
		return nil, err
	}

	n := &MemoryNetwork{
		name:        name,
		operatorID:  "0.0.2",
		operatorKey: kp.PrivateKey,
		nextEntity:  1000,
		accounts:    make(map[string]*memAccount),
		tokens:      make(map[string]*memToken),
		receipts:    make(map[string]*memReceipt),
		aliases:     make(map[string]string),
		submissions: make(map[interfaces.TxKind]int),
	}
	n.accounts[n.operatorID] = &memAccount{
		publicKey:  kp.PublicKey,
		tinybars:   operatorTinybars,
		tokens:     make(map[string]int64),
		associated: make(map[string]bool),
	}
	return n, nil
}

// Name returns the network name.
func (n *MemoryNetwork) Name() string {
	return n.name
}

// OperatorCredential returns the operator account id and a copy of its key.
func (n *MemoryNetwork) OperatorCredential() (string, []byte) {
	key := make([]byte, len(n.operatorKey))
	copy(key, n.operatorKey)
	return n.operatorID, key
}

// Dial implements DialFunc. The returned client is always bound to the
// network's own name.
func (n *MemoryNetwork) Dial(ctx context.Context, network string, operator OperatorIdentity) (interfaces.LedgerClient, error) {
	if operator.AccountID != n.operatorID {
		return nil, fmt.Errorf("unknown operator account %s", operator.AccountID)
	}
	pub, err := cryptoutils.PublicKeyFromPrivate(operator.PrivateKey)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if pub != n.accounts[n.operatorID].publicKey {
		return nil, errors.New("operator key does not match operator account")
	}
	return &memoryClient{network: n}, nil
}

// InjectFailure queues f.
func (n *MemoryNetwork) InjectFailure(f Failure) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, f)
}

// RevealReceipts makes receipts hidden by FailReceiptUnknown available.
func (n *MemoryNetwork) RevealReceipts() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.receipts {
		r.hidden = false
	}
}

// Submissions returns how many transactions of kind reached the ledger.
func (n *MemoryNetwork) Submissions(kind interfaces.TxKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submissions[kind]
}

// AccountCount returns the number of live accounts, the operator excluded.
func (n *MemoryNetwork) AccountCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for id, acc := range n.accounts {
		if id != n.operatorID && !acc.deleted {
			count++
		}
	}
	return count
}

// NFTOwner returns the account holding serial of tokenID.
func (n *MemoryNetwork) NFTOwner(tokenID string, serial int64) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	tok, ok := n.tokens[tokenID]
	if !ok {
		return "", false
	}
	owner, ok := tok.owners[serial]
	return owner, ok
}

// NFTMetadata returns the metadata minted into serial of tokenID.
func (n *MemoryNetwork) NFTMetadata(tokenID string, serial int64) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	tok, ok := n.tokens[tokenID]
	if !ok {
		return nil, false
	}
	meta, ok := tok.metadata[serial]
	return meta, ok
}

// SetLookupUnavailable makes LookupAccount fail with a transient error while
// down is set.
func (n *MemoryNetwork) SetLookupUnavailable(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lookupDown = down
}

// SetOperatorBalance overrides the operator's hbar balance.
func (n *MemoryNetwork) SetOperatorBalance(tinybars int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts[n.operatorID].tinybars = tinybars
}

func (n *MemoryNetwork) newEntityID() string {
	n.nextEntity++
	return fmt.Sprintf("0.0.%d", n.nextEntity)
}

func (n *MemoryNetwork) takeFailure(kind interfaces.TxKind) (Failure, bool) {
	for i, f := range n.failures {
		if f.Kind == "" || f.Kind == kind {
			n.failures = append(n.failures[:i], n.failures[i+1:]...)
			return f, true
		}
	}
	return Failure{}, false
}

func (n *MemoryNetwork) execute(txID string, tx interfaces.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, seen := n.receipts[txID]; seen {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassDuplicate, Status: "DUPLICATE_TRANSACTION", TxID: txID}
	}

	failure, injected := n.takeFailure(tx.Kind())
	if injected {
		switch failure.Mode {
		case FailTransient:
			return &interfaces.LedgerError{Class: interfaces.LedgerClassTransient, Status: "BUSY", TxID: txID, Refused: true}
		case FailReject:
			return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: failure.Status, TxID: txID, Refused: true}
		}
	}

	if err := n.precheck(tx); err != nil {
		err.TxID = txID
		err.Refused = true
		return err
	}

	n.submissions[tx.Kind()]++
	rec := &memReceipt{}
	receipt, lerr := n.apply(tx)
	if lerr != nil {
		rec.failed = true
		rec.class = lerr.Class
		rec.status = lerr.Status
	} else {
		receipt.TxID = txID
		receipt.Status = "SUCCESS"
		rec.receipt = receipt
	}
	n.receipts[txID] = rec

	if injected {
		switch failure.Mode {
		case FailLostResponse:
			return &interfaces.LedgerError{Class: interfaces.LedgerClassTransient, Status: "BUSY", TxID: txID}
		case FailReceiptUnknown:
			rec.hidden = true
		}
	}
	return nil
}

// precheck mirrors the node-level checks that refuse a transaction before it
// reaches consensus.
func (n *MemoryNetwork) precheck(tx interfaces.Transaction) *interfaces.LedgerError {
	operator := n.accounts[n.operatorID]
	if operator.tinybars <= 0 {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INSUFFICIENT_PAYER_BALANCE"}
	}

	switch t := tx.(type) {
	case interfaces.AccountCreate:
		addr, err := cryptoutils.EVMAddressFromPublicKey(t.PublicKey)
		if err != nil {
			return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_SIGNATURE_TYPE_MISMATCHING_KEY", Err: err}
		}
		if t.Alias != "" {
			if normalizeAlias(t.Alias) != normalizeAlias(addr) {
				return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_ALIAS_KEY"}
			}
			if pub, err := cryptoutils.PublicKeyFromPrivate(t.AccountKey); err != nil || pub != t.PublicKey {
				return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_SIGNATURE"}
			}
			if id, ok := n.aliases[normalizeAlias(t.Alias)]; ok && !n.accounts[id].deleted {
				return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "ALIAS_ALREADY_ASSIGNED"}
			}
		}
	case interfaces.AccountDelete:
		if err := n.checkSignature(t.AccountID, t.AccountKey); err != nil {
			return err
		}
	case interfaces.TokenAssociate:
		if err := n.checkSignature(t.AccountID, t.AccountKey); err != nil {
			return err
		}
	case interfaces.TokenCreate:
		if t.TreasuryAccountID != "" && t.TreasuryAccountID != n.operatorID {
			if err := n.checkSignature(t.TreasuryAccountID, t.TreasuryKey); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *MemoryNetwork) checkSignature(accountID string, key []byte) *interfaces.LedgerError {
	acc, ok := n.accounts[accountID]
	if !ok || acc.deleted {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_ACCOUNT_ID"}
	}
	pub, err := cryptoutils.PublicKeyFromPrivate(key)
	if err != nil || pub != acc.publicKey {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_SIGNATURE"}
	}
	return nil
}

func (n *MemoryNetwork) apply(tx interfaces.Transaction) (*interfaces.Receipt, *interfaces.LedgerError) {
	rejected := func(status string) *interfaces.LedgerError {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: status}
	}
	operator := n.accounts[n.operatorID]

	switch t := tx.(type) {
	case interfaces.AccountCreate:
		if t.InitialBalance >= operator.tinybars {
			return nil, rejected("INSUFFICIENT_PAYER_BALANCE")
		}
		operator.tinybars -= t.InitialBalance
		id := n.newEntityID()
		n.accounts[id] = &memAccount{
			publicKey:  t.PublicKey,
			tinybars:   t.InitialBalance,
			tokens:     make(map[string]int64),
			associated: make(map[string]bool),
		}
		if t.Alias != "" {
			n.aliases[normalizeAlias(t.Alias)] = id
		}
		return &interfaces.Receipt{AccountID: id}, nil

	case interfaces.AccountDelete:
		acc := n.accounts[t.AccountID]
		for tokenID, amount := range acc.tokens {
			if amount > 0 {
				return nil, rejected("TRANSACTION_REQUIRES_ZERO_TOKEN_BALANCES")
			}
			if n.tokens[tokenID].treasury == t.AccountID {
				return nil, rejected("ACCOUNT_IS_TREASURY")
			}
		}
		transfer := t.TransferAccountID
		if transfer == "" {
			transfer = n.operatorID
		}
		dest, ok := n.accounts[transfer]
		if !ok || dest.deleted {
			return nil, rejected("INVALID_TRANSFER_ACCOUNT_ID")
		}
		dest.tinybars += acc.tinybars
		acc.tinybars = 0
		acc.deleted = true
		return &interfaces.Receipt{AccountID: t.AccountID}, nil

	case interfaces.TokenCreate:
		treasury := t.TreasuryAccountID
		if treasury == "" {
			treasury = n.operatorID
		}
		acc, ok := n.accounts[treasury]
		if !ok || acc.deleted {
			return nil, rejected("INVALID_TREASURY_ACCOUNT_FOR_TOKEN")
		}
		if t.Name == "" {
			return nil, rejected("MISSING_TOKEN_NAME")
		}
		id := n.newEntityID()
		tok := &memToken{
			nonFungible: t.NonFungible,
			treasury:    treasury,
			owners:      make(map[int64]string),
			metadata:    make(map[int64][]byte),
		}
		if !t.NonFungible {
			tok.supply = int64(t.InitialSupply)
			acc.tokens[id] = int64(t.InitialSupply)
		}
		acc.associated[id] = true
		n.tokens[id] = tok
		return &interfaces.Receipt{TokenID: id}, nil

	case interfaces.TokenMint:
		tok, ok := n.tokens[t.TokenID]
		if !ok {
			return nil, rejected("INVALID_TOKEN_ID")
		}
		treasury := n.accounts[tok.treasury]
		if !tok.nonFungible {
			tok.supply += int64(t.Amount)
			treasury.tokens[t.TokenID] += int64(t.Amount)
			return &interfaces.Receipt{TokenID: t.TokenID}, nil
		}
		if len(t.Metadata) == 0 {
			return nil, rejected("MISSING_TOKEN_METADATA")
		}
		serials := make([]int64, 0, len(t.Metadata))
		for _, meta := range t.Metadata {
			if len(meta) > 100 {
				return nil, rejected("METADATA_TOO_LONG")
			}
		}
		for _, meta := range t.Metadata {
			tok.nextSerial++
			tok.owners[tok.nextSerial] = tok.treasury
			tok.metadata[tok.nextSerial] = append([]byte(nil), meta...)
			treasury.tokens[t.TokenID]++
			serials = append(serials, tok.nextSerial)
		}
		return &interfaces.Receipt{TokenID: t.TokenID, SerialNumbers: serials}, nil

	case interfaces.TokenAssociate:
		acc := n.accounts[t.AccountID]
		for _, tokenID := range t.TokenIDs {
			if _, ok := n.tokens[tokenID]; !ok {
				return nil, rejected("INVALID_TOKEN_ID")
			}
		}
		for _, tokenID := range t.TokenIDs {
			if acc.associated[tokenID] {
				return nil, &interfaces.LedgerError{Class: interfaces.LedgerClassAlreadySatisfied, Status: "TOKEN_ALREADY_ASSOCIATED_TO_ACCOUNT"}
			}
		}
		for _, tokenID := range t.TokenIDs {
			acc.associated[tokenID] = true
		}
		return &interfaces.Receipt{AccountID: t.AccountID}, nil

	case interfaces.TokenTransfer:
		from := t.FromAccountID
		if from == "" {
			from = n.operatorID
		}
		if _, ok := n.tokens[t.TokenID]; !ok {
			return nil, rejected("INVALID_TOKEN_ID")
		}
		src, ok := n.accounts[from]
		if !ok || src.deleted {
			return nil, rejected("INVALID_ACCOUNT_ID")
		}
		dst, ok := n.accounts[t.ToAccountID]
		if !ok || dst.deleted {
			return nil, rejected("INVALID_ACCOUNT_ID")
		}
		if !dst.associated[t.TokenID] {
			return nil, rejected("TOKEN_NOT_ASSOCIATED_TO_ACCOUNT")
		}
		if t.Amount <= 0 {
			return nil, rejected("INVALID_ACCOUNT_AMOUNTS")
		}
		if src.tokens[t.TokenID] < t.Amount {
			return nil, rejected("INSUFFICIENT_TOKEN_BALANCE")
		}
		src.tokens[t.TokenID] -= t.Amount
		dst.tokens[t.TokenID] += t.Amount
		return &interfaces.Receipt{TokenID: t.TokenID}, nil

	default:
		return nil, rejected("NOT_SUPPORTED")
	}
}

func (n *MemoryNetwork) receipt(txID string) (*interfaces.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.receipts[txID]
	if !ok || rec.hidden {
		return nil, &interfaces.LedgerError{Class: interfaces.LedgerClassUnknown, Status: "RECEIPT_NOT_FOUND", TxID: txID}
	}
	if rec.failed {
		return nil, &interfaces.LedgerError{Class: rec.class, Status: rec.status, TxID: txID}
	}
	out := *rec.receipt
	out.SerialNumbers = append([]int64(nil), rec.receipt.SerialNumbers...)
	return &out, nil
}

func (n *MemoryNetwork) balance(accountID string, tokenIDs []string) (*interfaces.AccountBalance, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	acc, ok := n.accounts[accountID]
	if !ok || acc.deleted {
		return nil, interfaces.NewError(interfaces.KindNotFound, "ledger account does not exist", nil)
	}
	out := &interfaces.AccountBalance{
		AccountID: accountID,
		Tinybars:  acc.tinybars,
		Tokens:    make(map[string]uint64, len(tokenIDs)),
	}
	for _, tokenID := range tokenIDs {
		out.Tokens[tokenID] = uint64(acc.tokens[tokenID])
	}
	return out, nil
}

func (n *MemoryNetwork) lookup(evmAddress string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lookupDown {
		return "", interfaces.NewError(interfaces.KindLedgerTransient, "account lookup unavailable", nil)
	}
	id, ok := n.aliases[normalizeAlias(evmAddress)]
	if !ok || n.accounts[id].deleted {
		return "", interfaces.NewError(interfaces.KindNotFound, "no account with this alias", nil)
	}
	return id, nil
}

func normalizeAlias(evmAddress string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(evmAddress, "0x"), "0X"))
}

type memoryClient struct {
	network *MemoryNetwork
}

func (c *memoryClient) Network() string {
	return c.network.name
}

func (c *memoryClient) OperatorAccountID() string {
	return c.network.operatorID
}

func (c *memoryClient) OperatorPublicKey() string {
	c.network.mu.Lock()
	defer c.network.mu.Unlock()
	return c.network.accounts[c.network.operatorID].publicKey
}

func (c *memoryClient) NewTransactionID() (string, error) {
	return fmt.Sprintf("%s@%d.%s", c.network.operatorID, time.Now().Unix(), uuid.NewString()), nil
}

func (c *memoryClient) Execute(ctx context.Context, txID string, tx interfaces.Transaction) error {
	if err := ctx.Err(); err != nil {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassTransient, Status: "CONTEXT_DONE", TxID: txID, Err: err}
	}
	return c.network.execute(txID, tx)
}

func (c *memoryClient) Receipt(ctx context.Context, txID string) (*interfaces.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, &interfaces.LedgerError{Class: interfaces.LedgerClassTransient, Status: "CONTEXT_DONE", TxID: txID, Err: err}
	}
	return c.network.receipt(txID)
}

func (c *memoryClient) Balance(ctx context.Context, accountID string, tokenIDs []string) (*interfaces.AccountBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.network.balance(accountID, tokenIDs)
}

func (c *memoryClient) LookupAccount(ctx context.Context, evmAddress string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.network.lookup(evmAddress)
}

func (c *memoryClient) Close() error {
	return nil
}
