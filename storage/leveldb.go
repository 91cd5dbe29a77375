package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDBBackend is the durable local store, the counterpart of a browser
// origin-scoped database. Keys are stored verbatim.
type LevelDBBackend struct {
	db          *leveldb.DB
	path        string
	log         *slog.Logger
	locationURI string
}

// NewLevelDBBackend opens (or creates) the database at path.
func NewLevelDBBackend(path string, log *slog.Logger) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}

	return &LevelDBBackend{
		db:          db,
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("leveldb://%s", path),
	}, nil
}

// NewInMemoryLevelDBBackend opens a database on leveldb's memory storage.
func NewInMemoryLevelDBBackend(log *slog.Logger) (*LevelDBBackend, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}

	return &LevelDBBackend{
		db:          db,
		path:        ":memory:",
		log:         log,
		locationURI: "leveldb://:memory:",
	}, nil
}

func (b *LevelDBBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return value, nil
}

func (b *LevelDBBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	b.log.Debug("Stored value in leveldb", slog.String("key", key), slog.Int("size", len(value)))
	return nil
}

func (b *LevelDBBackend) Delete(ctx context.Context, key string) error {
	if err := b.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available reports false once the database is closed.
func (b *LevelDBBackend) Available(ctx context.Context) bool {
	_, err := b.db.GetProperty("leveldb.stats")
	return err == nil
}

func (b *LevelDBBackend) Name() string {
	return "leveldb"
}

func (b *LevelDBBackend) LocationURI() string {
	return b.locationURI
}

func (b *LevelDBBackend) Close() error {
	return b.db.Close()
}
