package storage

import (
	"context"
	"fmt"

	"github.com/ruteri/fhevm-client/cryptoutils"
	"github.com/ruteri/fhevm-client/interfaces"
)

// EncryptedBackend seals every value with a passphrase derived key before it
// reaches the wrapped store. The key name is bound as associated data, so a
// value copied under another key fails to open.
type EncryptedBackend struct {
	inner      interfaces.KeyValueStore
	passphrase []byte
}

func NewEncryptedBackend(inner interfaces.KeyValueStore, passphrase []byte) *EncryptedBackend {
	return &EncryptedBackend{inner: inner, passphrase: passphrase}
}

func (b *EncryptedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := b.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	value, err := cryptoutils.OpenWithPassphrase(b.passphrase, sealed, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s value: %w", b.inner.Name(), err)
	}
	return value, nil
}

func (b *EncryptedBackend) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := cryptoutils.SealWithPassphrase(b.passphrase, value, []byte(key))
	if err != nil {
		return fmt.Errorf("failed to seal value: %w", err)
	}
	return b.inner.Set(ctx, key, sealed)
}

func (b *EncryptedBackend) Delete(ctx context.Context, key string) error {
	return b.inner.Delete(ctx, key)
}

func (b *EncryptedBackend) Available(ctx context.Context) bool {
	return b.inner.Available(ctx)
}

func (b *EncryptedBackend) Name() string {
	return "encrypted-" + b.inner.Name()
}

func (b *EncryptedBackend) LocationURI() string {
	return b.inner.LocationURI()
}
