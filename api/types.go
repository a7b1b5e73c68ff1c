package api

import (
	"time"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// MaxBodySize is the largest accepted request body (64KB).
const MaxBodySize = 64 * 1024

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`

	// LedgerStatus is the ledger's rejection reason, if any.
	LedgerStatus string `json:"ledgerStatus,omitempty"`
	// TransactionID lets clients follow up on OUTCOME_UNKNOWN and
	// PROVISIONING_IN_PROGRESS responses.
	TransactionID string `json:"transactionId,omitempty"`
}

// Wallet is the client view of a wallet record. Sealed key material and
// internal bookkeeping are never exposed.
type Wallet struct {
	UserID           string                  `json:"user_id"`
	Email            string                  `json:"email,omitempty"`
	HederaAccountID  string                  `json:"hedera_account_id,omitempty"`
	PublicKey        string                  `json:"public_key,omitempty"`
	EVMAddress       string                  `json:"evm_address,omitempty"`
	Network          string                  `json:"network"`
	Status           interfaces.WalletStatus `json:"status"`
	InitialBalance   int64                   `json:"initial_balance"`
	FailureReason    string                  `json:"failure_reason,omitempty"`
	AssociatedTokens []string                `json:"associated_tokens,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// NewWallet builds the client view of rec.
func NewWallet(rec *interfaces.WalletRecord) *Wallet {
	if rec == nil {
		return nil
	}
	return &Wallet{
		UserID:           rec.UserID,
		Email:            rec.Email,
		HederaAccountID:  rec.LedgerAccountID,
		PublicKey:        rec.PublicKey,
		EVMAddress:       rec.EVMAddress,
		Network:          rec.Network,
		Status:           rec.Status,
		InitialBalance:   rec.FundedBalance,
		FailureReason:    rec.FailureReason,
		AssociatedTokens: rec.AssociatedTokens,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

type OnboardingStatusResponse struct {
	Success   bool    `json:"success"`
	HasWallet bool    `json:"hasWallet"`
	Wallet    *Wallet `json:"wallet,omitempty"`
}

type OnboardingStartResponse struct {
	Success         bool   `json:"success"`
	HasWallet       bool   `json:"hasWallet"`
	HederaAccountID string `json:"hedera_account_id"`
	PublicKey       string `json:"public_key"`
	EVMAddress      string `json:"evm_address,omitempty"`
	Network         string `json:"network"`
	InitialBalance  int64  `json:"initial_balance"`
	// NeedsFunding is set when the account was created without a starting balance.
	NeedsFunding bool `json:"needs_funding"`
}

type WalletResponse struct {
	Success bool    `json:"success"`
	Wallet  *Wallet `json:"wallet"`
}

type BalanceResponse struct {
	Success   bool              `json:"success"`
	AccountID string            `json:"accountId"`
	Hbars     string            `json:"hbars"`
	Tinybars  int64             `json:"tinybars"`
	Tokens    map[string]uint64 `json:"tokens"`
}

type DeleteWalletResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
}

// CreateFolderRequest is the body of POST /nft/create and POST /folders.
type CreateFolderRequest struct {
	FolderName     string `json:"folderName"`
	ParentFolderID string `json:"parentFolderId,omitempty"`
}

type CreateFolderResponse struct {
	Success       bool   `json:"success"`
	TokenID       string `json:"tokenId"`
	NFTID         string `json:"nftId"`
	SerialNumber  int64  `json:"serialNumber"`
	TransactionID string `json:"transactionId"`
}

// NFT is the client view of a folder NFT.
type NFT struct {
	NFTID          string    `json:"nftId"`
	TokenID        string    `json:"tokenId"`
	SerialNumber   int64     `json:"serialNumber"`
	Name           string    `json:"name"`
	ParentFolderID string    `json:"parentFolderId,omitempty"`
	MetadataID     string    `json:"metadataId"`
	TransactionID  string    `json:"transactionId"`
	CreatedAt      time.Time `json:"createdAt"`
	Children       []*NFT    `json:"children,omitempty"`
}

// NewNFT builds the client view of rec.
func NewNFT(rec *interfaces.AssetRecord) *NFT {
	return &NFT{
		NFTID:          rec.AssetID,
		TokenID:        rec.TokenID,
		SerialNumber:   rec.SerialNumber,
		Name:           rec.Name,
		ParentFolderID: rec.ParentAssetID,
		MetadataID:     rec.MetadataID,
		TransactionID:  rec.TxID,
		CreatedAt:      rec.CreatedAt,
	}
}

type ListNFTsResponse struct {
	Success bool   `json:"success"`
	NFTs    []*NFT `json:"nfts"`
}

type FolderTreeResponse struct {
	Success bool   `json:"success"`
	Folders []*NFT `json:"folders"`
}

// RewardRequest is the body of POST /rewards. Amount is the multiplier
// applied to the event's rate and defaults to 1.
type RewardRequest struct {
	EventType string            `json:"eventType"`
	Amount    *int64            `json:"amount,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Reward is the client view of a reward ledger entry.
type Reward struct {
	RewardID      string            `json:"rewardId"`
	EventType     string            `json:"eventType"`
	Multiplier    int64             `json:"multiplier"`
	RewardAmount  string            `json:"rewardAmount"`
	TokenID       string            `json:"tokenId"`
	TransactionID string            `json:"transactionId"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// NewReward builds the client view of entry.
func NewReward(entry *interfaces.RewardLedgerEntry) *Reward {
	return &Reward{
		RewardID:      entry.RewardID,
		EventType:     entry.EventType,
		Multiplier:    entry.Multiplier,
		RewardAmount:  entry.Amount,
		TokenID:       entry.TokenID,
		TransactionID: entry.TxID,
		Metadata:      entry.Metadata,
		Timestamp:     entry.Timestamp,
	}
}

type RewardResponse struct {
	Success bool    `json:"success"`
	Reward  *Reward `json:"reward"`
}

type RewardHistoryResponse struct {
	Success bool      `json:"success"`
	Rewards []*Reward `json:"rewards"`
}
