package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// HederaNetworks are the networks DialHedera accepts.
var HederaNetworks = map[string]bool{
	"mainnet":    true,
	"testnet":    true,
	"previewnet": true,
}

// HederaClient implements interfaces.LedgerClient against a Hedera network.
type HederaClient struct {
	client      *hedera.Client
	network     string
	operatorID  hedera.AccountID
	operatorKey hedera.PrivateKey
	log         *slog.Logger
}

// DialHedera returns a DialFunc connecting to the public Hedera networks.
func DialHedera(log *slog.Logger) DialFunc {
	return func(ctx context.Context, network string, operator OperatorIdentity) (interfaces.LedgerClient, error) {
		if !HederaNetworks[network] {
			return nil, interfaces.NewError(interfaces.KindConfiguration, fmt.Sprintf("unsupported ledger network %q", network), nil)
		}

		operatorID, err := hedera.AccountIDFromString(operator.AccountID)
		if err != nil {
			return nil, fmt.Errorf("invalid operator account id: %w", err)
		}
		operatorKey, err := privateKeyFromRaw(operator.PrivateKey, operator.KeyAlgorithm)
		if err != nil {
			return nil, err
		}

		client, err := hedera.ClientForName(network)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", network, err)
		}
		client.SetOperator(operatorID, operatorKey)
		requestTimeout := 30 * time.Second
		client.SetRequestTimeout(&requestTimeout)

		return &HederaClient{
			client:      client,
			network:     network,
			operatorID:  operatorID,
			operatorKey: operatorKey,
			log:         log,
		}, nil
	}
}

func privateKeyFromRaw(raw []byte, algorithm string) (hedera.PrivateKey, error) {
	switch algorithm {
	case "", interfaces.KeyAlgorithmECDSASecp256k1:
		key, err := hedera.PrivateKeyFromBytesECDSA(raw)
		if err != nil {
			return hedera.PrivateKey{}, fmt.Errorf("invalid ECDSA private key: %w", err)
		}
		return key, nil
	case "ED25519":
		key, err := hedera.PrivateKeyFromBytesEd25519(raw)
		if err != nil {
			return hedera.PrivateKey{}, fmt.Errorf("invalid ED25519 private key: %w", err)
		}
		return key, nil
	default:
		return hedera.PrivateKey{}, fmt.Errorf("unsupported key algorithm %q", algorithm)
	}
}

func (h *HederaClient) Network() string {
	return h.network
}

func (h *HederaClient) OperatorAccountID() string {
	return h.operatorID.String()
}

func (h *HederaClient) OperatorPublicKey() string {
	return h.operatorKey.PublicKey().StringRaw()
}

func (h *HederaClient) NewTransactionID() (string, error) {
	return hedera.TransactionIDGenerate(h.operatorID).String(), nil
}

// executable is satisfied by every frozen SDK transaction.
type executable interface {
	Execute(client *hedera.Client) (hedera.TransactionResponse, error)
}

func (h *HederaClient) Execute(ctx context.Context, txID string, tx interfaces.Transaction) error {
	if err := ctx.Err(); err != nil {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassTransient, Status: "CONTEXT_DONE", TxID: txID, Err: err}
	}

	id, err := hedera.TransactionIdFromString(txID)
	if err != nil {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_TRANSACTION_ID", TxID: txID, Err: err}
	}

	frozen, err := h.build(id, tx)
	if err != nil {
		return &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_TRANSACTION_BODY", TxID: txID, Err: err}
	}

	_, err = frozen.Execute(h.client)
	if err != nil {
		return classifyHederaError(err, txID)
	}
	return nil
}

func (h *HederaClient) build(id hedera.TransactionID, tx interfaces.Transaction) (executable, error) {
	switch t := tx.(type) {
	case interfaces.AccountCreate:
		pub, err := hedera.PublicKeyFromStringECDSA(t.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid account public key: %w", err)
		}
		create := hedera.NewAccountCreateTransaction().
			SetTransactionID(id).
			SetKey(pub).
			SetInitialBalance(hedera.HbarFromTinybar(t.InitialBalance)).
			SetTransactionMemo(t.Memo)
		if t.Alias == "" {
			return create.FreezeWith(h.client)
		}
		key, err := privateKeyFromRaw(t.AccountKey, interfaces.KeyAlgorithmECDSASecp256k1)
		if err != nil {
			return nil, err
		}
		frozen, err := create.SetAlias(t.Alias).FreezeWith(h.client)
		if err != nil {
			return nil, err
		}
		return frozen.Sign(key), nil

	case interfaces.AccountDelete:
		accountID, err := hedera.AccountIDFromString(t.AccountID)
		if err != nil {
			return nil, err
		}
		transferID := h.operatorID
		if t.TransferAccountID != "" {
			if transferID, err = hedera.AccountIDFromString(t.TransferAccountID); err != nil {
				return nil, err
			}
		}
		key, err := privateKeyFromRaw(t.AccountKey, interfaces.KeyAlgorithmECDSASecp256k1)
		if err != nil {
			return nil, err
		}
		frozen, err := hedera.NewAccountDeleteTransaction().
			SetTransactionID(id).
			SetAccountID(accountID).
			SetTransferAccountID(transferID).
			FreezeWith(h.client)
		if err != nil {
			return nil, err
		}
		return frozen.Sign(key), nil

	case interfaces.TokenCreate:
		operatorPub := h.operatorKey.PublicKey()
		treasury := h.operatorID
		if t.TreasuryAccountID != "" {
			var err error
			if treasury, err = hedera.AccountIDFromString(t.TreasuryAccountID); err != nil {
				return nil, err
			}
		}
		create := hedera.NewTokenCreateTransaction().
			SetTransactionID(id).
			SetTokenName(t.Name).
			SetTokenSymbol(t.Symbol).
			SetTokenMemo(t.Memo).
			SetTreasuryAccountID(treasury).
			SetAdminKey(operatorPub).
			SetSupplyKey(operatorPub)
		if t.NonFungible {
			create.SetTokenType(hedera.TokenTypeNonFungibleUnique).
				SetSupplyType(hedera.TokenSupplyTypeInfinite).
				SetDecimals(0).
				SetInitialSupply(0)
		} else {
			create.SetTokenType(hedera.TokenTypeFungibleCommon).
				SetDecimals(t.Decimals).
				SetInitialSupply(t.InitialSupply)
		}
		frozen, err := create.FreezeWith(h.client)
		if err != nil {
			return nil, err
		}
		if len(t.TreasuryKey) > 0 {
			key, err := privateKeyFromRaw(t.TreasuryKey, interfaces.KeyAlgorithmECDSASecp256k1)
			if err != nil {
				return nil, err
			}
			frozen = frozen.Sign(key)
		}
		return frozen, nil

	case interfaces.TokenMint:
		tokenID, err := hedera.TokenIDFromString(t.TokenID)
		if err != nil {
			return nil, err
		}
		mint := hedera.NewTokenMintTransaction().SetTransactionID(id).SetTokenID(tokenID)
		if len(t.Metadata) > 0 {
			for _, m := range t.Metadata {
				mint.SetMetadata(m)
			}
		} else {
			mint.SetAmount(t.Amount)
		}
		return mint.FreezeWith(h.client)

	case interfaces.TokenAssociate:
		accountID, err := hedera.AccountIDFromString(t.AccountID)
		if err != nil {
			return nil, err
		}
		tokenIDs := make([]hedera.TokenID, 0, len(t.TokenIDs))
		for _, s := range t.TokenIDs {
			tokenID, err := hedera.TokenIDFromString(s)
			if err != nil {
				return nil, err
			}
			tokenIDs = append(tokenIDs, tokenID)
		}
		key, err := privateKeyFromRaw(t.AccountKey, interfaces.KeyAlgorithmECDSASecp256k1)
		if err != nil {
			return nil, err
		}
		frozen, err := hedera.NewTokenAssociateTransaction().
			SetTransactionID(id).
			SetAccountID(accountID).
			SetTokenIDs(tokenIDs...).
			FreezeWith(h.client)
		if err != nil {
			return nil, err
		}
		return frozen.Sign(key), nil

	case interfaces.TokenTransfer:
		tokenID, err := hedera.TokenIDFromString(t.TokenID)
		if err != nil {
			return nil, err
		}
		if t.FromAccountID != "" && t.FromAccountID != h.operatorID.String() {
			return nil, errors.New("transfers are only supported from the operator account")
		}
		to, err := hedera.AccountIDFromString(t.ToAccountID)
		if err != nil {
			return nil, err
		}
		return hedera.NewTransferTransaction().
			SetTransactionID(id).
			AddTokenTransfer(tokenID, h.operatorID, -t.Amount).
			AddTokenTransfer(tokenID, to, t.Amount).
			FreezeWith(h.client)

	default:
		return nil, fmt.Errorf("unsupported transaction %T", tx)
	}
}

func (h *HederaClient) Receipt(ctx context.Context, txID string) (*interfaces.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, &interfaces.LedgerError{Class: interfaces.LedgerClassTransient, Status: "CONTEXT_DONE", TxID: txID, Err: err}
	}

	id, err := hedera.TransactionIdFromString(txID)
	if err != nil {
		return nil, &interfaces.LedgerError{Class: interfaces.LedgerClassRejected, Status: "INVALID_TRANSACTION_ID", TxID: txID, Err: err}
	}

	receipt, err := hedera.NewTransactionReceiptQuery().SetTransactionID(id).Execute(h.client)
	if err != nil {
		lerr := classifyHederaError(err, txID)
		// A refused receipt query says nothing about the transaction.
		lerr.Refused = false
		return nil, lerr
	}
	if receipt.Status != hedera.StatusSuccess {
		return nil, &interfaces.LedgerError{Class: classifyStatus(receipt.Status), Status: receipt.Status.String(), TxID: txID}
	}

	out := &interfaces.Receipt{
		TxID:          txID,
		Status:        receipt.Status.String(),
		SerialNumbers: receipt.SerialNumbers,
	}
	if receipt.AccountID != nil {
		out.AccountID = receipt.AccountID.String()
	}
	if receipt.TokenID != nil {
		out.TokenID = receipt.TokenID.String()
	}
	return out, nil
}

func (h *HederaClient) Balance(ctx context.Context, accountID string, tokenIDs []string) (*interfaces.AccountBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := hedera.AccountIDFromString(accountID)
	if err != nil {
		return nil, interfaces.NewError(interfaces.KindInvalidArgument, "invalid account id", err)
	}

	balance, err := hedera.NewAccountBalanceQuery().SetAccountID(id).Execute(h.client)
	if err != nil {
		if accountMissing(err) {
			return nil, interfaces.NewError(interfaces.KindNotFound, "ledger account does not exist", err)
		}
		h.log.Warn("Balance query failed", "err", err, slog.String("account", accountID))
		return nil, interfaces.NewError(interfaces.KindLedgerTransient, "balance query failed", err)
	}

	out := &interfaces.AccountBalance{
		AccountID: accountID,
		Tinybars:  balance.Hbars.AsTinybar(),
		Tokens:    make(map[string]uint64, len(tokenIDs)),
	}
	for _, s := range tokenIDs {
		tokenID, err := hedera.TokenIDFromString(s)
		if err != nil {
			continue
		}
		out.Tokens[s] = balance.Tokens.Get(tokenID)
	}
	return out, nil
}

// LookupAccount resolves an EVM address alias through an account info query.
func (h *HederaClient) LookupAccount(ctx context.Context, evmAddress string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := hedera.AccountIDFromEvmAddress(h.operatorID.Shard, h.operatorID.Realm, evmAddress)
	if err != nil {
		return "", interfaces.NewError(interfaces.KindInvalidArgument, "invalid evm address", err)
	}

	info, err := hedera.NewAccountInfoQuery().SetAccountID(id).Execute(h.client)
	if err != nil {
		if accountMissing(err) {
			return "", interfaces.NewError(interfaces.KindNotFound, "no account with this alias", err)
		}
		h.log.Warn("Account lookup failed", "err", err, slog.String("alias", evmAddress))
		return "", interfaces.NewError(interfaces.KindLedgerTransient, "account lookup failed", err)
	}
	if info.IsDeleted {
		return "", interfaces.NewError(interfaces.KindNotFound, "no account with this alias", nil)
	}
	return info.AccountID.String(), nil
}

func (h *HederaClient) Close() error {
	return h.client.Close()
}

func classifyHederaError(err error, txID string) *interfaces.LedgerError {
	var precheck hedera.ErrHederaPreCheckStatus
	if errors.As(err, &precheck) {
		return &interfaces.LedgerError{Class: classifyStatus(precheck.Status), Status: precheck.Status.String(), TxID: txID, Refused: true, Err: err}
	}
	var receipt hedera.ErrHederaReceiptStatus
	if errors.As(err, &receipt) {
		return &interfaces.LedgerError{Class: classifyStatus(receipt.Status), Status: receipt.Status.String(), TxID: txID, Err: err}
	}
	return &interfaces.LedgerError{Class: interfaces.LedgerClassTransient, Status: "NETWORK_ERROR", TxID: txID, Err: err}
}

func classifyStatus(status hedera.Status) interfaces.LedgerErrorClass {
	switch status {
	case hedera.StatusBusy,
		hedera.StatusPlatformTransactionNotCreated,
		hedera.StatusPlatformNotActive,
		hedera.StatusThrottledAtConsensus:
		return interfaces.LedgerClassTransient
	case hedera.StatusUnknown, hedera.StatusReceiptNotFound:
		return interfaces.LedgerClassUnknown
	case hedera.StatusDuplicateTransaction:
		return interfaces.LedgerClassDuplicate
	case hedera.StatusTokenAlreadyAssociatedToAccount:
		return interfaces.LedgerClassAlreadySatisfied
	default:
		return interfaces.LedgerClassRejected
	}
}

// accountMissing reports a query answered with a missing or deleted account.
func accountMissing(err error) bool {
	var precheck hedera.ErrHederaPreCheckStatus
	if !errors.As(err, &precheck) {
		return false
	}
	switch precheck.Status {
	case hedera.StatusInvalidAccountID, hedera.StatusAccountDeleted:
		return true
	default:
		return false
	}
}
