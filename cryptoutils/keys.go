package cryptoutils

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// LedgerKeypair is a freshly generated secp256k1 keypair.
type LedgerKeypair struct {
	// PrivateKey is the raw 32-byte scalar. Callers must Zero it after use.
	PrivateKey []byte
	// PublicKey is the hex encoded compressed public key.
	PublicKey string
	// EVMAddress is the 0x prefixed address derived from the public key.
	EVMAddress string
}

// GenerateLedgerKeypair creates a new secp256k1 keypair.
func GenerateLedgerKeypair() (*LedgerKeypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}

	return &LedgerKeypair{
		PrivateKey: crypto.FromECDSA(key),
		PublicKey:  hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey)),
		EVMAddress: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// PublicKeyFromPrivate returns the hex encoded compressed public key of a raw
// secp256k1 private key.
func PublicKeyFromPrivate(privateKey []byte) (string, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid secp256k1 private key: %w", err)
	}
	return hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey)), nil
}

// EVMAddressFromPublicKey derives the EVM address of a hex encoded compressed public key.
func EVMAddressFromPublicKey(publicKey string) (string, error) {
	raw, err := hex.DecodeString(publicKey)
	if err != nil {
		return "", fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(raw) != 33 {
		return "", errors.New("public key must be a 33 byte compressed point")
	}
	pub, err := crypto.DecompressPubkey(raw)
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// Zero overwrites b.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
