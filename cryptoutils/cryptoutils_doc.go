// Package cryptoutils provides the sealing primitives used by the relayer
// transport and the passphrase protected authorization store.
//
// # Decryption keypairs
//
// GenerateDecryptionKeypair returns an ML-KEM-768 keypair. Values addressed to
// a user are sealed to the public half with Seal and recovered with Open:
//
//	[kem ciphertext (1088 bytes)][nonce (12 bytes)][AES-256-GCM ciphertext]
//
// The AES key is derived from the encapsulated shared secret with
// HKDF-SHA-512 and a fixed context string.
//
// # Passphrase boxes
//
// SealWithPassphrase derives an AES-256 key with Argon2id from a passphrase
// and a random salt:
//
//	[salt (16 bytes)][nonce (12 bytes)][AES-256-GCM ciphertext]
package cryptoutils
