// Package cryptoutils provides the key generation and authenticated encryption
// primitives used by the custodial wallet backend.
//
// # Ledger keypairs
//
// GenerateLedgerKeypair creates a secp256k1 keypair locally, without any
// network call. The public key is exported as the hex encoded compressed
// point accepted by the ledger network, together with the EVM address derived
// from it.
//
// # Envelope format
//
// SealEnvelope encrypts a secret with a 32-byte data key using
// XChaCha20-Poly1305 and packs it with the wrapped (KMS encrypted) form of the
// data key:
//
//	[magic "CWV1" (4 bytes)][wrapped key length (2 bytes)][wrapped key][nonce (24 bytes)][ciphertext]
//
// Where:
//   - Wrapped key length: uint16 in big-endian format
//   - Wrapped key: opaque bytes returned by the key-management service
//   - Nonce: random 24-byte XChaCha20 nonce
//   - Ciphertext: the sealed secret with its Poly1305 tag
//
// The caller supplies associated data (the master key reference) so an
// envelope cannot be opened under a different key reference.
//
// # Usage Example
//
//	kp, err := cryptoutils.GenerateLedgerKeypair()
//	if err != nil {
//	    return err
//	}
//	defer cryptoutils.Zero(kp.PrivateKey)
//
//	envelope, err := cryptoutils.SealEnvelope(dataKey, wrappedKey, kp.PrivateKey, []byte(keyRef))
package cryptoutils
