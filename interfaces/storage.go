package interfaces

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// StorageBackendLocation is a URI identifying a store:
// [scheme]://[auth@]host[:port][/path][?params]
type StorageBackendLocation string

// Parse validates the location and returns the parsed URL.
func (loc StorageBackendLocation) Parse() (*url.URL, error) {
	u, err := url.Parse(string(loc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory", "file", "leveldb", "s3", "vault", "ipfs":
	default:
		return nil, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, u.Scheme)
	}
	return u, nil
}

func (loc StorageBackendLocation) String() string {
	return string(loc)
}

// KeyValueStore is a durable string-keyed byte store.
type KeyValueStore interface {
	// Get returns ErrContentNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete is a no-op for an absent key.
	Delete(ctx context.Context, key string) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StoreFactory creates stores from location URIs.
type StoreFactory interface {
	StoreFor(location StorageBackendLocation) (KeyValueStore, error)
	CreateMultiStore(locations []StorageBackendLocation) (KeyValueStore, error)
}
