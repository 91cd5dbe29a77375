package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/fhevm-client/interfaces"
)

// MultiStorageBackend implements interfaces.KeyValueStore using multiple
// backends: reads fall back in order, writes fan out to every available one.
type MultiStorageBackend struct {
	backends []interfaces.KeyValueStore
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.KeyValueStore, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Get returns the value from the first available backend that has it.
// ErrContentNotFound is returned only when every consulted backend missed.
func (m *MultiStorageBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var errs []error
	misses := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		data, err := backend.Get(ctx, key)
		if err == nil {
			m.log.Debug("Fetched value",
				slog.String("backend_name", backend.Name()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrContentNotFound) {
			misses++
			continue
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			"err", err)
	}

	if len(errs) == 0 {
		if misses == 0 {
			return nil, interfaces.ErrBackendUnavailable
		}
		return nil, interfaces.ErrContentNotFound
	}

	m.log.Warn("Backends failed to fetch value",
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to fetch value: %w", errors.Join(errs...))
}

// Set saves the value to all available backends. It succeeds if at least one
// backend accepted the write.
func (m *MultiStorageBackend) Set(ctx context.Context, key string, value []byte) error {
	var errs []error
	stored := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		if err := backend.Set(ctx, key, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}
		stored++
	}

	if stored == 0 {
		if len(errs) == 0 {
			return interfaces.ErrBackendUnavailable
		}
		return fmt.Errorf("all backends failed to store value: %w", errors.Join(errs...))
	}

	return nil
}

// Delete removes the key from every available backend.
func (m *MultiStorageBackend) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		if err := backend.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the URI of this backend
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
