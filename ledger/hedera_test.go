package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status hedera.Status
		want   interfaces.LedgerErrorClass
	}{
		{hedera.StatusBusy, interfaces.LedgerClassTransient},
		{hedera.StatusPlatformTransactionNotCreated, interfaces.LedgerClassTransient},
		{hedera.StatusPlatformNotActive, interfaces.LedgerClassTransient},
		{hedera.StatusThrottledAtConsensus, interfaces.LedgerClassTransient},
		{hedera.StatusUnknown, interfaces.LedgerClassUnknown},
		{hedera.StatusReceiptNotFound, interfaces.LedgerClassUnknown},
		{hedera.StatusDuplicateTransaction, interfaces.LedgerClassDuplicate},
		{hedera.StatusTokenAlreadyAssociatedToAccount, interfaces.LedgerClassAlreadySatisfied},
		{hedera.StatusInsufficientPayerBalance, interfaces.LedgerClassRejected},
		{hedera.StatusInvalidSignature, interfaces.LedgerClassRejected},
		{hedera.StatusInsufficientTokenBalance, interfaces.LedgerClassRejected},
		{hedera.StatusTokenNotAssociatedToAccount, interfaces.LedgerClassRejected},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, classifyStatus(tt.status))
		})
	}
}

func TestClassifyHederaError(t *testing.T) {
	const txID = "0.0.2@1700000000.000000001"

	tests := []struct {
		name        string
		err         error
		wantClass   interfaces.LedgerErrorClass
		wantStatus  string
		wantRefused bool
	}{
		{
			name:        "busy at precheck",
			err:         hedera.ErrHederaPreCheckStatus{Status: hedera.StatusBusy},
			wantClass:   interfaces.LedgerClassTransient,
			wantStatus:  "BUSY",
			wantRefused: true,
		},
		{
			name:        "wrapped payer balance at precheck",
			err:         fmt.Errorf("execute: %w", hedera.ErrHederaPreCheckStatus{Status: hedera.StatusInsufficientPayerBalance}),
			wantClass:   interfaces.LedgerClassRejected,
			wantStatus:  "INSUFFICIENT_PAYER_BALANCE",
			wantRefused: true,
		},
		{
			name:        "duplicate at precheck",
			err:         hedera.ErrHederaPreCheckStatus{Status: hedera.StatusDuplicateTransaction},
			wantClass:   interfaces.LedgerClassDuplicate,
			wantStatus:  "DUPLICATE_TRANSACTION",
			wantRefused: true,
		},
		{
			name:       "throttled at consensus",
			err:        hedera.ErrHederaReceiptStatus{Status: hedera.StatusThrottledAtConsensus},
			wantClass:  interfaces.LedgerClassTransient,
			wantStatus: "THROTTLED_AT_CONSENSUS",
		},
		{
			name:       "invalid signature in receipt",
			err:        hedera.ErrHederaReceiptStatus{Status: hedera.StatusInvalidSignature},
			wantClass:  interfaces.LedgerClassRejected,
			wantStatus: "INVALID_SIGNATURE",
		},
		{
			name:       "wrapped already associated in receipt",
			err:        fmt.Errorf("receipt: %w", hedera.ErrHederaReceiptStatus{Status: hedera.StatusTokenAlreadyAssociatedToAccount}),
			wantClass:  interfaces.LedgerClassAlreadySatisfied,
			wantStatus: "TOKEN_ALREADY_ASSOCIATED_TO_ACCOUNT",
		},
		{
			name:       "receipt not found",
			err:        hedera.ErrHederaReceiptStatus{Status: hedera.StatusReceiptNotFound},
			wantClass:  interfaces.LedgerClassUnknown,
			wantStatus: "RECEIPT_NOT_FOUND",
		},
		{
			name:       "transport failure",
			err:        errors.New("connection reset by peer"),
			wantClass:  interfaces.LedgerClassTransient,
			wantStatus: "NETWORK_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyHederaError(tt.err, txID)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantClass, got.Class)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantRefused, got.Refused)
			assert.Equal(t, txID, got.TxID)
			assert.Equal(t, tt.err, got.Err)
		})
	}
}

func TestAccountMissing(t *testing.T) {
	assert.True(t, accountMissing(hedera.ErrHederaPreCheckStatus{Status: hedera.StatusInvalidAccountID}))
	assert.True(t, accountMissing(fmt.Errorf("balance: %w", hedera.ErrHederaPreCheckStatus{Status: hedera.StatusAccountDeleted})))
	assert.False(t, accountMissing(hedera.ErrHederaPreCheckStatus{Status: hedera.StatusBusy}))
	assert.False(t, accountMissing(hedera.ErrHederaReceiptStatus{Status: hedera.StatusAccountDeleted}))
	assert.False(t, accountMissing(errors.New("timeout")))
}
