package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackends(t *testing.T) {
	log := discardLogger()

	tests := []struct {
		name string
		open func(t *testing.T) interfaces.KeyValueStore
	}{
		{
			name: "memory",
			open: func(t *testing.T) interfaces.KeyValueStore { return NewMemoryBackend() },
		},
		{
			name: "file",
			open: func(t *testing.T) interfaces.KeyValueStore {
				b, err := NewFileBackend(t.TempDir(), log)
				require.NoError(t, err)
				return b
			},
		},
		{
			name: "leveldb",
			open: func(t *testing.T) interfaces.KeyValueStore {
				b, err := NewLevelDBBackend(t.TempDir(), log)
				require.NoError(t, err)
				t.Cleanup(func() { b.Close() })
				return b
			},
		},
		{
			name: "leveldb in memory",
			open: func(t *testing.T) interfaces.KeyValueStore {
				b, err := NewInMemoryLevelDBBackend(log)
				require.NoError(t, err)
				t.Cleanup(func() { b.Close() })
				return b
			},
		},
		{
			name: "encrypted memory",
			open: func(t *testing.T) interfaces.KeyValueStore {
				return NewEncryptedBackend(NewMemoryBackend(), []byte("passphrase"))
			},
		},
	}

	// Authorization keys can embed a full public key.
	longKey := "fhevm:decrypt:0xabc:0xdef:0x" + strings.Repeat("ab", 1200)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := tt.open(t)
			assert.True(t, store.Available(ctx))

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

			require.NoError(t, store.Set(ctx, "key", []byte("v1")))
			require.NoError(t, store.Set(ctx, "key", []byte("v2")))
			value, err := store.Get(ctx, "key")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), value)

			require.NoError(t, store.Set(ctx, longKey, []byte("long")))
			value, err = store.Get(ctx, longKey)
			require.NoError(t, err)
			assert.Equal(t, []byte("long"), value)

			require.NoError(t, store.Delete(ctx, "key"))
			require.NoError(t, store.Delete(ctx, "key"))
			_, err = store.Get(ctx, "key")
			assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

			assert.NotEmpty(t, store.Name())
			assert.NotEmpty(t, store.LocationURI())
		})
	}
}

func TestLevelDBUnavailableAfterClose(t *testing.T) {
	b, err := NewInMemoryLevelDBBackend(discardLogger())
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.False(t, b.Available(context.Background()))
}

func TestEncryptedBackendBindsKey(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	store := NewEncryptedBackend(inner, []byte("passphrase"))

	require.NoError(t, store.Set(ctx, "a", []byte("secret")))

	raw, err := inner.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	// Moving the sealed value under another key must not open.
	require.NoError(t, inner.Set(ctx, "b", raw))
	_, err = store.Get(ctx, "b")
	assert.Error(t, err)

	wrong := NewEncryptedBackend(inner, []byte("other"))
	_, err = wrong.Get(ctx, "a")
	assert.Error(t, err)
}
