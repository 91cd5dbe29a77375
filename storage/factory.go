package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/fhevm-client/interfaces"
)

// StorageBackendFactory creates stores from URI strings and manages
// multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log        *slog.Logger
	passphrase []byte
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log: logger,
	}
}

// WithPassphrase sets the passphrase used for locations with encrypted=true.
func (sf *StorageBackendFactory) WithPassphrase(passphrase []byte) *StorageBackendFactory {
	sf.passphrase = passphrase
	return sf
}

// StoreFor creates a store from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - Process memory
//   - file:// - Local filesystem storage
//   - leveldb:// - Local LevelDB database
//   - s3:// - Amazon S3 or compatible object storage
//   - vault:// - HashiCorp Vault KV v2
//   - ipfs:// - IPFS mutable file system
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *StorageBackendFactory) StoreFor(location interfaces.StorageBackendLocation) (interfaces.KeyValueStore, error) {
	u, err := location.Parse()
	if err != nil {
		return nil, err
	}

	var store interfaces.KeyValueStore
	switch strings.ToLower(u.Scheme) {
	case "memory":
		store = NewMemoryBackend()
	case "file":
		store, err = sf.createFileBackend(u)
	case "leveldb":
		store, err = sf.createLevelDBBackend(u)
	case "s3":
		store, err = sf.createS3Backend(u)
	case "vault":
		store, err = sf.createVaultBackend(u)
	case "ipfs":
		store, err = sf.createIPFSBackend(u)
	}
	if err != nil {
		return nil, err
	}

	if u.Query().Get("encrypted") == "true" {
		if len(sf.passphrase) == 0 {
			return nil, fmt.Errorf("%w: encrypted store requires a passphrase", interfaces.ErrInvalidLocationURI)
		}
		store = NewEncryptedBackend(store, sf.passphrase)
	}

	return store, nil
}

// CreateMultiStore creates a multi-storage backend from a list of location URIs.
// Invalid locations are logged and skipped.
// Returns an error if no valid backends could be created from the provided URIs.
func (sf *StorageBackendFactory) CreateMultiStore(locations []interfaces.StorageBackendLocation) (interfaces.KeyValueStore, error) {
	backends := make([]interfaces.KeyValueStore, 0, len(locations))
	var errs []error

	for _, location := range locations {
		backend, err := sf.StoreFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", string(location)))
			errs = append(errs, err)
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created: %w", errors.Join(errs...))
	}

	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", u.String()))

	path := localPath(u)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewFileBackend(path, sf.log)
}

// createLevelDBBackend opens a LevelDB database.
// URI format: leveldb:///absolute/path or leveldb://./relative/path
func (sf *StorageBackendFactory) createLevelDBBackend(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating leveldb backend", slog.String("uri", u.String()))

	path := localPath(u)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in leveldb URI: %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewLevelDBBackend(path, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StorageBackendFactory) createS3Backend(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", u.Host))

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in S3 URI", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(u.Host, strings.TrimPrefix(u.Path, "/"), region, query.Get("endpoint"), accessKey, secretKey, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://host:port/mount/path?token=...&tls=false
// The first path segment is the mount, the rest is the data path.
func (sf *StorageBackendFactory) createVaultBackend(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating Vault backend", slog.String("host", u.Host))

	segments := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if u.Host == "" || segments[0] == "" {
		return nil, fmt.Errorf("%w: expected vault://host:port/mount[/path]", interfaces.ErrInvalidLocationURI)
	}

	dataPath := ""
	if len(segments) == 2 {
		dataPath = segments[1]
	}

	query := u.Query()
	scheme := "https"
	if query.Get("tls") == "false" {
		scheme = "http"
	}

	return NewVaultBackend(scheme+"://"+u.Host, segments[0], dataPath, query.Get("token"), sf.log)
}

// createIPFSBackend creates an IPFS MFS backend.
// URI format: ipfs://host:port/root?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", u.String()))

	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	timeout := 30 * time.Second
	if raw := u.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, u.Path, timeout, sf.log)
}

func localPath(u *url.URL) string {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	return path
}
