// Package kms implements the Credential Vault: envelope encryption of private
// keys and of the shared operator secret under a master key held by an
// external key-management service.
//
// # EnvelopeVault
//
// EnvelopeVault implements interfaces.CredentialVault. Every Encrypt call asks
// the configured interfaces.KeyService for a fresh 32-byte data key, seals the
// secret with XChaCha20-Poly1305 under that key (the key reference is bound as
// associated data) and stores the wrapped data key next to the ciphertext, see
// cryptoutils.SealEnvelope. Decrypt reverses the process. The vault keeps no
// state and is safe for concurrent use.
//
// Any failure, whether a service-side denial, an unknown key reference, a
// malformed envelope or an authentication failure, is reported as an
// interfaces.Error of kind KindCrypto. Such failures are never retried.
//
// # Key services
//
// AWSKeyService: AWS KMS GenerateDataKey and Decrypt. The key reference is a
// key id, ARN or alias.
//
// TransitKeyService: HashiCorp Vault Transit secrets engine. The key reference
// is the name of a transit key.
//
// AgeKeyService: a local X25519 age identity, intended for development and
// tests. The identity can be split into Shamir shares with SplitIdentity and
// reassembled with an IdentityEscrow so that no single administrator holds it.
//
// # Usage Example
//
//	keys, err := kms.NewAWSKeyServiceFromConfig("eu-west-1", "")
//	if err != nil {
//	    return err
//	}
//	vault := kms.NewEnvelopeVault(keys, log)
//
//	sealed, err := vault.Encrypt(ctx, privateKey, "alias/wallet-keys")
//	...
//	privateKey, err = vault.Decrypt(ctx, sealed, "alias/wallet-keys")
package kms
