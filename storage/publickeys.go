package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	publicKeyTable    = "publicKeyStore"
	publicParamsTable = "paramsStore"
)

type publicKeyRecord struct {
	ACL   string               `msgpack:"acl"`
	Value interfaces.PublicKey `msgpack:"value"`
}

type publicParamsRecord struct {
	ACL   string                  `msgpack:"acl"`
	Value interfaces.PublicParams `msgpack:"value"`
}

// PublicKeyStorage caches public key material per ACL contract address in
// two independent tables. Entries are never evicted.
type PublicKeyStorage struct {
	store interfaces.KeyValueStore
	log   *slog.Logger
}

func NewPublicKeyStorage(store interfaces.KeyValueStore, log *slog.Logger) *PublicKeyStorage {
	return &PublicKeyStorage{store: store, log: log}
}

// Get returns whatever material is cached for acl. A miss in one table does
// not affect the other; a full miss returns empty material and no error.
func (s *PublicKeyStorage) Get(ctx context.Context, acl common.Address) (*interfaces.PublicMaterial, error) {
	material := &interfaces.PublicMaterial{}

	var keyRecord publicKeyRecord
	found, err := s.read(ctx, tableKey(publicKeyTable, acl), &keyRecord)
	if err != nil {
		return nil, err
	}
	if found {
		material.PublicKey = &keyRecord.Value
	}

	var paramsRecord publicParamsRecord
	found, err = s.read(ctx, tableKey(publicParamsTable, acl), &paramsRecord)
	if err != nil {
		return nil, err
	}
	if found {
		material.PublicParams = &paramsRecord.Value
	}

	s.log.Debug("Public key cache lookup",
		slog.String("acl", acl.Hex()),
		slog.Bool("publicKey", material.PublicKey != nil),
		slog.Bool("publicParams", material.PublicParams != nil))

	return material, nil
}

// Set writes only the non-nil arguments; a nil argument leaves the existing
// record untouched.
func (s *PublicKeyStorage) Set(ctx context.Context, acl common.Address, key *interfaces.PublicKey, params *interfaces.PublicParams) error {
	if key != nil {
		if err := s.write(ctx, tableKey(publicKeyTable, acl), publicKeyRecord{ACL: acl.Hex(), Value: *key}); err != nil {
			return err
		}
	}

	if params != nil {
		if err := s.write(ctx, tableKey(publicParamsTable, acl), publicParamsRecord{ACL: acl.Hex(), Value: *params}); err != nil {
			return err
		}
	}

	return nil
}

func (s *PublicKeyStorage) read(ctx context.Context, key string, record interface{}) (bool, error) {
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := msgpack.Unmarshal(data, record); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PublicKeyStorage) write(ctx context.Context, key string, record interface{}) error {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := s.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func tableKey(table string, acl common.Address) string {
	return table + "/" + acl.Hex()
}
