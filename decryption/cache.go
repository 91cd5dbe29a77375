package decryption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/metrics"
	"golang.org/x/sync/singleflight"
)

// Cache loads authorizations from a store and signs new ones on a miss.
type Cache struct {
	store        interfaces.KeyValueStore
	log          *slog.Logger
	metrics      *metrics.Collectors
	durationDays int64
	now          func() time.Time

	dedupe bool
	group  singleflight.Group
}

func NewCache(store interfaces.KeyValueStore, log *slog.Logger) *Cache {
	return &Cache{
		store:        store,
		log:          log,
		durationDays: DefaultDurationDays,
		now:          time.Now,
	}
}

// WithPromptDeduplication makes concurrent misses for the same storage key
// share one signature prompt.
func (c *Cache) WithPromptDeduplication() *Cache {
	c.dedupe = true
	return c
}

func (c *Cache) WithDurationDays(days int64) *Cache {
	c.durationDays = days
	return c
}

func (c *Cache) WithMetrics(m *metrics.Collectors) *Cache {
	c.metrics = m
	return c
}

// Load returns the stored authorization for the key, or nil when it is
// absent, unreadable or expired.
func (c *Cache) Load(ctx context.Context, user common.Address, contracts []common.Address, publicKey string) *DecryptionAuthorization {
	key := StorageKey(user, contracts, publicKey)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrContentNotFound) {
			c.log.Warn("Could not read decryption authorization", slog.String("key", key), "err", err)
		}
		return nil
	}

	auth, err := FromJSON(data)
	if err != nil {
		c.log.Warn("Dropping malformed decryption authorization", slog.String("key", key), "err", err)
		return nil
	}
	if !auth.IsValidAt(c.now()) {
		c.log.Debug("Decryption authorization expired", slog.String("key", key), slog.Time("expiresAt", auth.ExpiresAt()))
		return nil
	}
	return auth
}

// Sign prompts signer for a new authorization over contracts. A nil keyPair
// is replaced by a fresh one from instance. The result is not stored.
func (c *Cache) Sign(ctx context.Context, instance interfaces.Instance, contracts []common.Address, signer interfaces.TypedDataSigner, keyPair *interfaces.Keypair) (*DecryptionAuthorization, error) {
	user, err := signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
	}
	return c.sign(ctx, instance, user, contracts, signer, keyPair)
}

// sign builds the authorization for user, the account signer was resolved to.
func (c *Cache) sign(ctx context.Context, instance interfaces.Instance, user common.Address, contracts []common.Address, signer interfaces.TypedDataSigner, keyPair *interfaces.Keypair) (*DecryptionAuthorization, error) {
	var err error
	if keyPair == nil {
		keyPair, err = instance.GenerateKeypair()
		if err != nil {
			return nil, fmt.Errorf("could not generate decryption keypair: %w", err)
		}
	}

	start := c.now().Unix()
	td, err := instance.CreateEIP712(keyPair.PublicKey, contracts, start, c.durationDays)
	if err != nil {
		return nil, fmt.Errorf("could not build authorization payload: %w", err)
	}

	c.metrics.AuthorizationEvent("prompt")
	sig, err := signer.SignTypedData(ctx, *td)
	if err != nil {
		if !errors.Is(err, interfaces.ErrSignatureRejected) {
			err = fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
		}
		return nil, err
	}

	return &DecryptionAuthorization{
		PublicKey:         keyPair.PublicKey,
		PrivateKey:        keyPair.PrivateKey,
		Signature:         hexutil.Encode(sig),
		StartTimestamp:    start,
		DurationDays:      c.durationDays,
		UserAddress:       user,
		ContractAddresses: append([]common.Address(nil), contracts...),
		EIP712:            td,
	}, nil
}

// Store persists auth. The key carries the public key only when
// includePublicKey is set.
func (c *Cache) Store(ctx context.Context, auth *DecryptionAuthorization, includePublicKey bool) error {
	publicKey := ""
	if includePublicKey {
		publicKey = auth.PublicKey
	}

	data, err := auth.ToJSON()
	if err != nil {
		return err
	}
	return c.store.Set(ctx, StorageKey(auth.UserAddress, auth.ContractAddresses, publicKey), data)
}

// LoadOrSign returns a valid authorization for the signer's account and
// contracts, signing and storing a new one on a miss. It returns nil when no
// authorization can be obtained now; the caller should prompt again later.
//
// When keyPair is given, the authorization is bound to it: the storage key
// includes its public key and a new authorization uses it.
func (c *Cache) LoadOrSign(ctx context.Context, instance interfaces.Instance, contracts []common.Address, signer interfaces.TypedDataSigner, keyPair *interfaces.Keypair) *DecryptionAuthorization {
	user, err := signer.Address(ctx)
	if err != nil {
		c.metrics.AuthorizationEvent("failure")
		c.log.Warn("Signer has no account", "err", err)
		return nil
	}

	publicKey := ""
	if keyPair != nil {
		publicKey = keyPair.PublicKey
	}

	if cached := c.Load(ctx, user, contracts, publicKey); cached != nil {
		c.metrics.AuthorizationEvent("hit")
		return cached
	}
	c.metrics.AuthorizationEvent("miss")

	signAndStore := func() (*DecryptionAuthorization, error) {
		auth, err := c.sign(ctx, instance, user, contracts, signer, keyPair)
		if err != nil {
			return nil, err
		}
		if err := c.Store(ctx, auth, keyPair != nil); err != nil {
			c.log.Warn("Could not persist decryption authorization", slog.String("user", user.Hex()), "err", err)
		}
		return auth, nil
	}

	if !c.dedupe {
		auth, err := signAndStore()
		if err != nil {
			return c.failed(user, err)
		}
		return auth
	}

	v, err, _ := c.group.Do(StorageKey(user, contracts, publicKey), func() (interface{}, error) {
		if cached := c.Load(ctx, user, contracts, publicKey); cached != nil {
			return cached, nil
		}
		return signAndStore()
	})
	if err != nil {
		return c.failed(user, err)
	}
	return v.(*DecryptionAuthorization)
}

func (c *Cache) failed(user common.Address, err error) *DecryptionAuthorization {
	c.metrics.AuthorizationEvent("failure")
	c.log.Warn("No decryption authorization", slog.String("user", user.Hex()), "err", err)
	return nil
}
