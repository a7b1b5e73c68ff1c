package interfaces

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OperatorUserID is the reserved key under which the OperatorCredential is stored.
const OperatorUserID = "__operator__"

// KeyAlgorithmECDSASecp256k1 identifies secp256k1 private keys.
const KeyAlgorithmECDSASecp256k1 = "ECDSA_SECP256K1"

// AuthenticatedSubject is the verified caller identity produced at the HTTP
// boundary. Internal components accept only this type.
type AuthenticatedSubject struct {
	UserID string
	Email  string
}

// WalletStatus is the provisioning state of a wallet.
type WalletStatus string

const (
	WalletPending WalletStatus = "pending"
	WalletActive  WalletStatus = "active"
	// WalletFailed records a creation that definitely produced no account.
	// Only a failed record may be replaced by a new pending marker.
	WalletFailed WalletStatus = "failed"
	// WalletUnresolved records a creation whose outcome could not be
	// established. It blocks provisioning until the reconciler settles it.
	WalletUnresolved WalletStatus = "unresolved"
	// WalletDeleting marks a wallet whose account deletion has started.
	WalletDeleting WalletStatus = "deleting"
)

// WalletRecord holds the wallet metadata of one user.
type WalletRecord struct {
	UserID          string       `json:"userId" dynamodbav:"user_id"`
	Email           string       `json:"email,omitempty" dynamodbav:"email,omitempty"`
	LedgerAccountID string       `json:"ledgerAccountId,omitempty" dynamodbav:"ledger_account_id,omitempty"`
	PublicKey       string       `json:"publicKey,omitempty" dynamodbav:"public_key,omitempty"`
	EVMAddress      string       `json:"evmAddress,omitempty" dynamodbav:"evm_address,omitempty"`
	Network         string       `json:"network" dynamodbav:"network"`
	Status          WalletStatus `json:"status" dynamodbav:"status"`
	FundedBalance   int64        `json:"fundedBalance" dynamodbav:"funded_balance"`
	CreatedAt       time.Time    `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt       time.Time    `json:"updatedAt" dynamodbav:"updated_at"`

	// PendingTxID is the account creation transaction of a pending attempt.
	PendingTxID string `json:"pendingTxId,omitempty" dynamodbav:"pending_tx_id,omitempty"`
	// PendingKey is the sealed private key of a pending attempt. It is
	// dropped on activation and on a definite rejection.
	PendingKey    []byte `json:"pendingKey,omitempty" dynamodbav:"pending_key,omitempty"`
	FailureReason string `json:"failureReason,omitempty" dynamodbav:"failure_reason,omitempty"`

	AssociatedTokens []string `json:"associatedTokens,omitempty" dynamodbav:"associated_tokens,omitempty"`
}

// IsAssociated reports whether the wallet is recorded as associated with tokenID.
func (w *WalletRecord) IsAssociated(tokenID string) bool {
	for _, t := range w.AssociatedTokens {
		if t == tokenID {
			return true
		}
	}
	return false
}

// KeyRecord holds a private key sealed by the CredentialVault.
type KeyRecord struct {
	UserID                 string    `json:"userId" dynamodbav:"user_id"`
	LedgerAccountID        string    `json:"ledgerAccountId" dynamodbav:"ledger_account_id"`
	PublicKey              string    `json:"publicKey" dynamodbav:"public_key"`
	EncryptedPrivateKey    []byte    `json:"encryptedPrivateKey" dynamodbav:"encrypted_private_key"`
	EncryptionKeyReference string    `json:"encryptionKeyReference" dynamodbav:"encryption_key_reference"`
	KeyAlgorithm           string    `json:"keyAlgorithm" dynamodbav:"key_algorithm"`
	CreatedAt              time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// AssetRecord is one folder NFT.
type AssetRecord struct {
	AssetID       string    `json:"assetId" dynamodbav:"asset_id"`
	TokenID       string    `json:"tokenId" dynamodbav:"token_id"`
	SerialNumber  int64     `json:"serialNumber" dynamodbav:"serial_number"`
	OwnerUserID   string    `json:"ownerUserId" dynamodbav:"owner_user_id"`
	ParentAssetID string    `json:"parentAssetId,omitempty" dynamodbav:"parent_asset_id,omitempty"`
	Name          string    `json:"name" dynamodbav:"name"`
	MetadataID    string    `json:"metadataId" dynamodbav:"metadata_id"`
	MetadataBlob  []byte    `json:"metadataBlob" dynamodbav:"metadata_blob"`
	CreatedAt     time.Time `json:"createdAt" dynamodbav:"created_at"`
	TxID          string    `json:"txId" dynamodbav:"tx_id"`
}

// AssetIDFor returns the identifier of the NFT with the given serial.
func AssetIDFor(tokenID string, serial int64) string {
	return fmt.Sprintf("%s/%d", tokenID, serial)
}

// ParseAssetID splits an asset identifier into token and serial.
func ParseAssetID(assetID string) (string, int64, error) {
	tokenID, serialStr, ok := strings.Cut(assetID, "/")
	if !ok || tokenID == "" {
		return "", 0, fmt.Errorf("invalid asset id %q", assetID)
	}
	serial, err := strconv.ParseInt(serialStr, 10, 64)
	if err != nil || serial <= 0 {
		return "", 0, fmt.Errorf("invalid asset serial in %q", assetID)
	}
	return tokenID, serial, nil
}

// CollectionRecord is the per-user NFT collection folders are minted from.
type CollectionRecord struct {
	UserID     string    `json:"userId" dynamodbav:"user_id"`
	TokenID    string    `json:"tokenId" dynamodbav:"token_id"`
	MetadataID string    `json:"metadataId" dynamodbav:"metadata_id"`
	CreatedAt  time.Time `json:"createdAt" dynamodbav:"created_at"`
	TxID       string    `json:"txId" dynamodbav:"tx_id"`
}

// RewardLedgerEntry records one issued reward.
type RewardLedgerEntry struct {
	RewardID   string `json:"rewardId" dynamodbav:"reward_id"`
	UserID     string `json:"userId" dynamodbav:"user_id"`
	EventType  string `json:"eventType" dynamodbav:"event_type"`
	Multiplier int64  `json:"multiplier" dynamodbav:"multiplier"`
	// Amount in whole token units, as a decimal string.
	Amount string `json:"amount" dynamodbav:"amount"`
	// RawAmount in the token's smallest unit.
	RawAmount int64             `json:"rawAmount" dynamodbav:"raw_amount"`
	TokenID   string            `json:"tokenId" dynamodbav:"token_id"`
	TxID      string            `json:"txId" dynamodbav:"tx_id"`
	Metadata  map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp" dynamodbav:"timestamp"`
	ExpiresAt time.Time         `json:"expiresAt" dynamodbav:"expires_at,unixtime"`
}
