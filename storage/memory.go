package storage

import (
	"context"
	"sync"

	"github.com/ruteri/fhevm-client/interfaces"
)

// MemoryBackend keeps values in process memory. Safe for concurrent use.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	value, ok := b.values[key]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return append([]byte(nil), value...), nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.values, key)
	return nil
}

func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

func (b *MemoryBackend) Name() string {
	return "memory"
}

func (b *MemoryBackend) LocationURI() string {
	return "memory://"
}
