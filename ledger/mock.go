package ledger

import (
	"context"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockLedgerClient mocks the interfaces.LedgerClient interface
type MockLedgerClient struct {
	mock.Mock
}

// Network mocks the Network method
func (m *MockLedgerClient) Network() string {
	args := m.Called()
	return args.String(0)
}

// OperatorAccountID mocks the OperatorAccountID method
func (m *MockLedgerClient) OperatorAccountID() string {
	args := m.Called()
	return args.String(0)
}

// OperatorPublicKey mocks the OperatorPublicKey method
func (m *MockLedgerClient) OperatorPublicKey() string {
	args := m.Called()
	return args.String(0)
}

// NewTransactionID mocks the NewTransactionID method
func (m *MockLedgerClient) NewTransactionID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

// Execute mocks the Execute method
func (m *MockLedgerClient) Execute(ctx context.Context, txID string, tx interfaces.Transaction) error {
	args := m.Called(ctx, txID, tx)
	return args.Error(0)
}

// Receipt mocks the Receipt method
func (m *MockLedgerClient) Receipt(ctx context.Context, txID string) (*interfaces.Receipt, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Receipt), args.Error(1)
}

// Balance mocks the Balance method
func (m *MockLedgerClient) Balance(ctx context.Context, accountID string, tokenIDs []string) (*interfaces.AccountBalance, error) {
	args := m.Called(ctx, accountID, tokenIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.AccountBalance), args.Error(1)
}

// LookupAccount mocks the LookupAccount method
func (m *MockLedgerClient) LookupAccount(ctx context.Context, evmAddress string) (string, error) {
	args := m.Called(ctx, evmAddress)
	return args.String(0), args.Error(1)
}

// Close mocks the Close method
func (m *MockLedgerClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// StaticSession is a SessionProvider returning a fixed client.
type StaticSession struct {
	Client interfaces.LedgerClient
	Err    error
}

func (s StaticSession) Session(context.Context) (interfaces.LedgerClient, error) {
	return s.Client, s.Err
}
