package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// OperatorIdentity is the decrypted operator credential handed to a Dialer.
type OperatorIdentity struct {
	AccountID    string
	PrivateKey   []byte
	KeyAlgorithm string
}

// DialFunc constructs a client bound to network and authenticated as operator.
type DialFunc func(ctx context.Context, network string, operator OperatorIdentity) (interfaces.LedgerClient, error)

// SessionProvider hands out the operator session.
type SessionProvider interface {
	Session(ctx context.Context) (interfaces.LedgerClient, error)
}

// SessionManager lazily builds and caches the operator session for the
// lifetime of the process. It is safe for concurrent use.
type SessionManager struct {
	network string
	keys    interfaces.KeyStore
	vault   interfaces.CredentialVault
	dial    DialFunc
	log     *slog.Logger

	mu     sync.RWMutex
	client interfaces.LedgerClient
}

// NewSessionManager creates a session manager for network.
//
// Parameters:
//   - network: the one ledger network of this deployment
//   - keys: key store holding the OperatorCredential under interfaces.OperatorUserID
//   - vault: vault that sealed the OperatorCredential
//   - dial: client constructor, DialHedera in production
//   - log: structured logger
func NewSessionManager(network string, keys interfaces.KeyStore, vault interfaces.CredentialVault, dial DialFunc, log *slog.Logger) *SessionManager {
	return &SessionManager{
		network: network,
		keys:    keys,
		vault:   vault,
		dial:    dial,
		log:     log,
	}
}

// Network returns the configured network.
func (m *SessionManager) Network() string {
	return m.network
}

// Session returns the cached operator session, constructing it on first use.
// A failed construction is not cached; the next call tries again.
func (m *SessionManager) Session(ctx context.Context) (interfaces.LedgerClient, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	if m.network == "" {
		return nil, interfaces.NewError(interfaces.KindConfiguration, "ledger network is not configured", nil)
	}

	rec, err := m.keys.GetKey(ctx, interfaces.OperatorUserID)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		m.log.Error("Operator credential is missing")
		return nil, interfaces.NewError(interfaces.KindOperatorUnavailable, "operator credential is missing", err)
	} else if err != nil {
		m.log.Error("Failed to read operator credential", "err", err)
		return nil, interfaces.NewError(interfaces.KindOperatorUnavailable, "operator credential is unreadable", err)
	}

	privateKey, err := m.vault.Decrypt(ctx, rec.EncryptedPrivateKey, rec.EncryptionKeyReference)
	if err != nil {
		m.log.Error("Failed to decrypt operator credential", "err", err)
		return nil, interfaces.NewError(interfaces.KindOperatorUnavailable, "operator credential cannot be decrypted", err)
	}
	defer cryptoutils.Zero(privateKey)

	client, err = m.dial(ctx, m.network, OperatorIdentity{
		AccountID:    rec.LedgerAccountID,
		PrivateKey:   privateKey,
		KeyAlgorithm: rec.KeyAlgorithm,
	})
	if err != nil {
		var typed *interfaces.Error
		if errors.As(err, &typed) && typed.Kind == interfaces.KindConfiguration {
			return nil, typed
		}
		m.log.Error("Failed to construct operator session", "err", err, slog.String("network", m.network))
		return nil, interfaces.NewError(interfaces.KindOperatorUnavailable, "operator session cannot be established", err)
	}

	if client.Network() != m.network {
		client.Close()
		return nil, interfaces.NewError(interfaces.KindConfiguration,
			fmt.Sprintf("operator session bound to %q, deployment configured for %q", client.Network(), m.network), nil)
	}

	m.log.Info("Operator session established",
		slog.String("network", m.network),
		slog.String("operator", client.OperatorAccountID()))
	m.client = client
	return client, nil
}

// Close releases the cached session.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

// ImportOperator seals the operator private key and stores it as the
// OperatorCredential. An existing credential is never overwritten.
func ImportOperator(ctx context.Context, keys interfaces.KeyStore, vault interfaces.CredentialVault, keyRef string, operator OperatorIdentity) error {
	if operator.AccountID == "" || len(operator.PrivateKey) == 0 {
		return interfaces.NewError(interfaces.KindInvalidArgument, "operator account and key are required", nil)
	}
	algorithm := operator.KeyAlgorithm
	if algorithm == "" {
		algorithm = interfaces.KeyAlgorithmECDSASecp256k1
	}

	var publicKey string
	if algorithm == interfaces.KeyAlgorithmECDSASecp256k1 {
		pub, err := cryptoutils.PublicKeyFromPrivate(operator.PrivateKey)
		if err != nil {
			return interfaces.NewError(interfaces.KindInvalidArgument, "operator key is not a secp256k1 key", err)
		}
		publicKey = pub
	}

	sealed, err := vault.Encrypt(ctx, operator.PrivateKey, keyRef)
	if err != nil {
		return err
	}

	err = keys.CreateKey(ctx, &interfaces.KeyRecord{
		UserID:                 interfaces.OperatorUserID,
		LedgerAccountID:        operator.AccountID,
		PublicKey:              publicKey,
		EncryptedPrivateKey:    sealed,
		EncryptionKeyReference: keyRef,
		KeyAlgorithm:           algorithm,
		CreatedAt:              time.Now(),
	})
	if errors.Is(err, interfaces.ErrConditionFailed) {
		return interfaces.NewError(interfaces.KindInvalidArgument, "an operator credential is already stored", err)
	}
	return err
}
