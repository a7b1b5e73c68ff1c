package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// FakeProvisioner is an in-memory interfaces.WalletProvisioner that never
// touches a ledger. Accounts are numbered from 0.0.5001.
type FakeProvisioner struct {
	mu       sync.Mutex
	wallets  map[string]*interfaces.WalletRecord
	balances map[string]*interfaces.AccountBalance
	next     int
	err      error
}

func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{
		wallets:  make(map[string]*interfaces.WalletRecord),
		balances: make(map[string]*interfaces.AccountBalance),
		next:     5000,
	}
}

// FailWith makes every later call return err. A nil err clears the failure.
func (f *FakeProvisioner) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetTokenBalance sets the balance Balance reports for tokenID.
func (f *FakeProvisioner) SetTokenBalance(userID, tokenID string, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[userID]; ok {
		b.Tokens[tokenID] = amount
	}
}

func (f *FakeProvisioner) Provision(ctx context.Context, subject interfaces.AuthenticatedSubject) (*interfaces.WalletRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.wallets[subject.UserID]; ok {
		out := *rec
		return &out, nil
	}

	f.next++
	now := time.Now()
	rec := &interfaces.WalletRecord{
		UserID:          subject.UserID,
		Email:           subject.Email,
		LedgerAccountID: fmt.Sprintf("0.0.%d", f.next),
		PublicKey:       fmt.Sprintf("02%064x", f.next),
		Network:         "testnet",
		Status:          interfaces.WalletActive,
		FundedBalance:   DefaultConfig().InitialBalance,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.wallets[subject.UserID] = rec
	f.balances[subject.UserID] = &interfaces.AccountBalance{
		AccountID: rec.LedgerAccountID,
		Tinybars:  rec.FundedBalance,
		Tokens:    make(map[string]uint64),
	}
	out := *rec
	return &out, nil
}

func (f *FakeProvisioner) Status(ctx context.Context, userID string) (*interfaces.WalletRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.wallets[userID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (f *FakeProvisioner) Balance(ctx context.Context, userID string) (*interfaces.AccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.balances[userID]
	if !ok {
		return nil, interfaces.NewError(interfaces.KindNotFound, "no active wallet", nil)
	}
	out := *b
	out.Tokens = make(map[string]uint64, len(b.Tokens))
	for k, v := range b.Tokens {
		out.Tokens[k] = v
	}
	return &out, nil
}

func (f *FakeProvisioner) Delete(ctx context.Context, subject interfaces.AuthenticatedSubject) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, ok := f.wallets[subject.UserID]; !ok {
		return "", interfaces.NewError(interfaces.KindNotFound, "no active wallet", nil)
	}
	delete(f.wallets, subject.UserID)
	delete(f.balances, subject.UserID)
	return fmt.Sprintf("0.0.2@%d.0", time.Now().Unix()), nil
}
