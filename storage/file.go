package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/fhevm-client/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Each value lives in one file named after the hashed key.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// The directory is created if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Get reads the value stored under key.
// Returns ErrContentNotFound if the file doesn't exist.
func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	filePath := b.getFilePath(key)

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched value from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Set writes the value through a temporary file so readers never observe a
// partial write.
func (b *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	filePath := b.getFilePath(key)

	tmp, err := os.CreateTemp(b.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	b.log.Debug("Stored value in file", slog.String("path", filePath))
	return nil
}

func (b *FileBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.getFilePath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) getFilePath(key string) string {
	return filepath.Join(b.baseDir, objectName(key))
}
