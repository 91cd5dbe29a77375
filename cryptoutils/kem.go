package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"golang.org/x/crypto/hkdf"
)

const (
	// HKDFContext separates keys derived for sealed relayer payloads.
	HKDFContext = "fhevm-client:seal:v1"

	AESKeySize   = 32
	AESNonceSize = 12
	AESTagSize   = 16
)

var (
	ErrInvalidPublicKey  = errors.New("invalid ML-KEM public key")
	ErrInvalidPrivateKey = errors.New("invalid ML-KEM private key")
	ErrCiphertextShort   = errors.New("ciphertext too short")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

var scheme = mlkem768.Scheme()

// PublicKeySize and PrivateKeySize are the packed ML-KEM-768 key sizes.
var (
	PublicKeySize  = scheme.PublicKeySize()
	PrivateKeySize = scheme.PrivateKeySize()
)

// GenerateDecryptionKeypair creates a new ML-KEM-768 keypair.
func GenerateDecryptionKeypair() (publicKey, privateKey []byte, err error) {
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}

	publicKey, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	privateKey, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return publicKey, privateKey, nil
}

// Seal encrypts plaintext to an ML-KEM-768 public key. aad is authenticated
// but not encrypted.
func Seal(publicKey, plaintext, aad []byte) ([]byte, error) {
	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	kemCt, sharedSecret, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, fmt.Errorf("encapsulation failed: %w", err)
	}

	key, err := deriveKey(sharedSecret, kemCt)
	if err != nil {
		return nil, err
	}

	sealed, err := encryptAESGCM(key, plaintext, aad)
	if err != nil {
		return nil, err
	}

	return append(kemCt, sealed...), nil
}

// Open reverses Seal with the matching private key.
func Open(privateKey, ciphertext, aad []byte) ([]byte, error) {
	sk, err := scheme.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	ctSize := scheme.CiphertextSize()
	if len(ciphertext) < ctSize+AESNonceSize+AESTagSize {
		return nil, ErrCiphertextShort
	}

	kemCt := ciphertext[:ctSize]
	sharedSecret, err := scheme.Decapsulate(sk, kemCt)
	if err != nil {
		return nil, fmt.Errorf("decapsulation failed: %w", err)
	}

	key, err := deriveKey(sharedSecret, kemCt)
	if err != nil {
		return nil, err
	}

	return decryptAESGCM(key, ciphertext[ctSize:], aad)
}

func deriveKey(secret, salt []byte) ([]byte, error) {
	reader := hkdf.New(sha512.New, secret, salt, []byte(HKDFContext))
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// encryptAESGCM returns nonce || ciphertext || tag.
func encryptAESGCM(key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, AESNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return aesGCM.Seal(nonce, nonce, plaintext, aad), nil
}

func decryptAESGCM(key, data, aad []byte) ([]byte, error) {
	if len(data) < AESNonceSize+AESTagSize {
		return nil, ErrCiphertextShort
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, data[:AESNonceSize], data[AESNonceSize:], aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
