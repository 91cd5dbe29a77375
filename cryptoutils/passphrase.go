package cryptoutils

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/argon2"
)

const passphraseSaltSize = 16

// DeriveStoreKey derives an AES-256 key from a passphrase with Argon2id.
func DeriveStoreKey(passphrase, salt []byte) []byte {
	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, AESKeySize)
}

// SealWithPassphrase encrypts data under a key derived from passphrase. Every
// call uses a fresh salt.
func SealWithPassphrase(passphrase, data, aad []byte) ([]byte, error) {
	salt := make([]byte, passphraseSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	sealed, err := encryptAESGCM(DeriveStoreKey(passphrase, salt), data, aad)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

func OpenWithPassphrase(passphrase, data, aad []byte) ([]byte, error) {
	if len(data) < passphraseSaltSize+AESNonceSize+AESTagSize {
		return nil, ErrCiphertextShort
	}
	salt := data[:passphraseSaltSize]
	return decryptAESGCM(DeriveStoreKey(passphrase, salt), data[passphraseSaltSize:], aad)
}
