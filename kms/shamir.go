package kms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"filippo.io/age"
	"github.com/hashicorp/vault/shamir"
)

// SplitIdentity splits an age identity into hex encoded Shamir shares, any
// threshold of which reconstruct it. The shares must be distributed to
// different administrators and the identity file erased afterwards.
func SplitIdentity(identity *age.X25519Identity, threshold, total int) ([]string, error) {
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if total < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	secret := []byte(identity.String())
	defer wipeBytes(secret)

	shares, err := shamir.Split(secret, total, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split identity: %w", err)
	}

	encoded := make([]string, len(shares))
	for i, share := range shares {
		encoded[i] = hex.EncodeToString(share)
		wipeBytes(share)
	}
	return encoded, nil
}

// IdentityEscrow collects Shamir shares until the age identity can be
// reconstructed. The identity exists only in memory.
type IdentityEscrow struct {
	mu             sync.Mutex
	threshold      int
	receivedShares map[string][]byte
	identity       *age.X25519Identity
}

// NewIdentityEscrow creates a locked escrow expecting threshold shares.
func NewIdentityEscrow(threshold int) *IdentityEscrow {
	return &IdentityEscrow{
		threshold:      threshold,
		receivedShares: make(map[string][]byte),
	}
}

// SubmitShare adds a hex encoded share. Once threshold distinct shares are
// present the identity is reconstructed and the shares are wiped.
func (e *IdentityEscrow) SubmitShare(share string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.identity != nil {
		return errors.New("escrow is already unlocked")
	}

	raw, err := hex.DecodeString(strings.TrimSpace(share))
	if err != nil || len(raw) < 2 {
		return errors.New("invalid share encoding")
	}
	e.receivedShares[hex.EncodeToString(raw)] = raw

	return e.tryReconstruct()
}

func (e *IdentityEscrow) tryReconstruct() error {
	if len(e.receivedShares) < e.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(e.receivedShares))
	for _, share := range e.receivedShares {
		shares = append(shares, share)
	}

	secret, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct identity: %w", err)
	}
	defer wipeBytes(secret)

	identity, err := age.ParseX25519Identity(string(secret))
	if err != nil {
		return fmt.Errorf("reconstructed identity is invalid: %w", err)
	}
	e.identity = identity

	for k := range e.receivedShares {
		wipeBytes(e.receivedShares[k])
	}
	e.receivedShares = make(map[string][]byte)
	return nil
}

// IsUnlocked returns whether the identity has been reconstructed.
func (e *IdentityEscrow) IsUnlocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity != nil
}

// Identity returns the reconstructed identity.
func (e *IdentityEscrow) Identity() (*age.X25519Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == nil {
		return nil, fmt.Errorf("escrow is locked - need %d shares to unlock", e.threshold)
	}
	return e.identity, nil
}

// CombineIdentity reconstructs an identity from a complete set of shares.
func CombineIdentity(shares []string) (*age.X25519Identity, error) {
	escrow := NewIdentityEscrow(len(shares))
	for _, share := range shares {
		if err := escrow.SubmitShare(share); err != nil {
			return nil, err
		}
	}
	return escrow.Identity()
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
