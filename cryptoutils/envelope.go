package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/chacha20poly1305"
)

var envelopeMagic = []byte("CWV1")

// ErrMalformedEnvelope is returned when an envelope cannot be parsed.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is a parsed sealed secret.
type Envelope struct {
	WrappedKey []byte
	Nonce      []byte
	Ciphertext []byte
}

// SealEnvelope encrypts plaintext under dataKey and packs it with wrappedKey.
func SealEnvelope(dataKey, wrappedKey, plaintext, aad []byte) ([]byte, error) {
	if len(wrappedKey) == 0 || len(wrappedKey) > math.MaxUint16 {
		return nil, fmt.Errorf("invalid wrapped key length %d", len(wrappedKey))
	}

	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(envelopeMagic) + 2 + len(wrappedKey) + len(nonce) + len(plaintext) + aead.Overhead())
	buf.Write(envelopeMagic)
	lenBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBytes, uint16(len(wrappedKey)))
	buf.Write(lenBytes)
	buf.Write(wrappedKey)
	buf.Write(nonce)
	buf.Write(aead.Seal(nil, nonce, plaintext, aad))

	return buf.Bytes(), nil
}

// ParseEnvelope splits a sealed secret into its parts without decrypting it.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) < len(envelopeMagic)+2 || !bytes.Equal(data[:len(envelopeMagic)], envelopeMagic) {
		return nil, ErrMalformedEnvelope
	}
	data = data[len(envelopeMagic):]

	keyLen := int(binary.BigEndian.Uint16(data[:2]))
	data = data[2:]
	if keyLen == 0 || len(data) < keyLen+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrMalformedEnvelope
	}

	return &Envelope{
		WrappedKey: data[:keyLen],
		Nonce:      data[keyLen : keyLen+chacha20poly1305.NonceSizeX],
		Ciphertext: data[keyLen+chacha20poly1305.NonceSizeX:],
	}, nil
}

// Open decrypts the envelope with the unwrapped data key.
func (e *Envelope) Open(dataKey, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, e.Nonce, e.Ciphertext, aad)
	if err != nil {
		return nil, errors.New("envelope authentication failed")
	}
	return plaintext, nil
}
