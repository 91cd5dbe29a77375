package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/fhevm-client/interfaces"
)

// IPFSBackend stores values in the mutable file system (MFS) of an IPFS node,
// under a root directory.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the API of
// the node at host:port.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	root = "/" + strings.Trim(root, "/")
	if root == "/" {
		root = "/fhevm"
	}

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, root, timeout),
	}, nil
}

// Get reads the value from MFS.
// Returns ErrContentNotFound if the file doesn't exist or ErrBackendUnavailable
// if the IPFS node is not accessible.
func (b *IPFSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	filePath := b.getIPFSPath(key)

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, filePath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			b.log.Debug("Value not found in IPFS",
				slog.String("path", filePath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		b.log.Error("Failed to read data from IPFS",
			slog.String("path", filePath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched value from IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Set writes the value to MFS, creating parent directories and truncating
// any previous content.
func (b *IPFSBackend) Set(ctx context.Context, key string, value []byte) error {
	if !b.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	filePath := b.getIPFSPath(key)
	err := b.shell.FilesWrite(ctx, filePath, bytes.NewReader(value),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write data to IPFS: %w", err)
	}

	b.log.Debug("Stored value in IPFS", slog.String("path", filePath))
	return nil
}

func (b *IPFSBackend) Delete(ctx context.Context, key string) error {
	if !b.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	err := b.shell.FilesRm(ctx, b.getIPFSPath(key), true)
	if err != nil && !strings.Contains(err.Error(), "does not exist") {
		return fmt.Errorf("failed to remove data from IPFS: %w", err)
	}
	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) getIPFSPath(key string) string {
	return path.Join(b.root, objectName(key))
}
