package decryption

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/internal/sdktest"
	"github.com/ruteri/fhevm-client/metrics"
	"github.com/ruteri/fhevm-client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	contractB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingSigner signs with a local key and counts prompts. When release is
// set, every prompt blocks until it is closed.
type countingSigner struct {
	key     *ecdsa.PrivateKey
	err     error
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newCountingSigner(t *testing.T) *countingSigner {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &countingSigner{key: key}
}

func (s *countingSigner) Address(ctx context.Context) (common.Address, error) {
	return crypto.PubkeyToAddress(s.key.PublicKey), nil
}

func (s *countingSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}

	hash, err := instanceutils.TypedDataHash(data)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(hash, s.key)
}

func (s *countingSigner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newInstance() *sdktest.FakeInstance {
	return sdktest.NewFakeInstance(interfaces.InstanceConfig{NetworkConfig: *sdktest.SepoliaConfig()})
}

func TestStorageKey(t *testing.T) {
	user := common.HexToAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72")

	tests := []struct {
		name      string
		contracts []common.Address
		publicKey string
		expected  string
	}{
		{
			name:      "single contract",
			contracts: []common.Address{contractA},
			expected:  "fhevm:decrypt:0x8ba1f109551bD432803012645Ac136ddd64DBA72:" + contractA.Hex(),
		},
		{
			name:      "order is kept",
			contracts: []common.Address{contractB, contractA},
			expected:  "fhevm:decrypt:0x8ba1f109551bD432803012645Ac136ddd64DBA72:" + contractB.Hex() + "," + contractA.Hex(),
		},
		{
			name:      "with public key",
			contracts: []common.Address{contractA, contractB},
			publicKey: "0xabcd",
			expected:  "fhevm:decrypt:0x8ba1f109551bD432803012645Ac136ddd64DBA72:" + contractA.Hex() + "," + contractB.Hex() + ":0xabcd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StorageKey(user, tt.contracts, tt.publicKey))
		})
	}
}

func TestIsValidBoundary(t *testing.T) {
	auth := &DecryptionAuthorization{StartTimestamp: 1_700_000_000, DurationDays: 2}
	expiry := int64(1_700_000_000 + 2*86400)

	assert.True(t, auth.IsValidAt(time.Unix(1_700_000_000, 0)))
	assert.True(t, auth.IsValidAt(time.Unix(expiry-1, 0)))
	assert.False(t, auth.IsValidAt(time.Unix(expiry, 0)))
	assert.False(t, auth.IsValidAt(time.Unix(expiry+1, 0)))
	assert.Equal(t, time.Unix(expiry, 0), auth.ExpiresAt())
}

func TestSignProducesValidAuthorization(t *testing.T) {
	signer := newCountingSigner(t)
	cache := NewCache(storage.NewMemoryBackend(), discardLogger())
	instance := newInstance()

	auth, err := cache.Sign(context.Background(), instance, []common.Address{contractA}, signer, nil)
	require.NoError(t, err)

	assert.True(t, auth.IsValid())
	assert.Equal(t, int64(DefaultDurationDays), auth.DurationDays)
	assert.Equal(t, crypto.PubkeyToAddress(signer.key.PublicKey), auth.UserAddress)
	assert.Equal(t, []common.Address{contractA}, auth.ContractAddresses)
	require.NotNil(t, auth.EIP712)
	assert.Equal(t, instanceutils.UserDecryptPrimaryType, auth.EIP712.PrimaryType)

	sig, err := hexutil.Decode(auth.Signature)
	require.NoError(t, err)
	require.NoError(t, instanceutils.VerifyTypedDataSignature(*auth.EIP712, sig, auth.UserAddress))

	req := auth.UserDecryptRequest()
	assert.Equal(t, auth.PrivateKey, req.PrivateKey)
	assert.Equal(t, auth.StartTimestamp, req.StartTimestamp)
	assert.True(t, auth.Covers([]common.Address{contractA}))
	assert.False(t, auth.Covers([]common.Address{contractA, contractB}))
}

func TestJSONRoundTrip(t *testing.T) {
	signer := newCountingSigner(t)
	cache := NewCache(storage.NewMemoryBackend(), discardLogger())

	auth, err := cache.Sign(context.Background(), newInstance(), []common.Address{contractA, contractB}, signer, nil)
	require.NoError(t, err)

	data, err := auth.ToJSON()
	require.NoError(t, err)
	decoded, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, auth.PublicKey, decoded.PublicKey)
	assert.Equal(t, auth.PrivateKey, decoded.PrivateKey)
	assert.Equal(t, auth.Signature, decoded.Signature)
	assert.Equal(t, auth.StartTimestamp, decoded.StartTimestamp)
	assert.Equal(t, auth.DurationDays, decoded.DurationDays)
	assert.Equal(t, auth.UserAddress, decoded.UserAddress)
	assert.Equal(t, auth.ContractAddresses, decoded.ContractAddresses)
	assert.Equal(t, auth.EIP712.Message, decoded.EIP712.Message)
	assert.Equal(t, auth.EIP712.Types, decoded.EIP712.Types)

	want, err := instanceutils.TypedDataHash(*auth.EIP712)
	require.NoError(t, err)
	got, err := instanceutils.TypedDataHash(*decoded.EIP712)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = FromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestLoadOrSignReusesAuthorization(t *testing.T) {
	signer := newCountingSigner(t)
	store := storage.NewMemoryBackend()
	cache := NewCache(store, discardLogger())
	instance := newInstance()
	contracts := []common.Address{contractA, contractB}

	first := cache.LoadOrSign(context.Background(), instance, contracts, signer, nil)
	require.NotNil(t, first)
	second := cache.LoadOrSign(context.Background(), instance, contracts, signer, nil)
	require.NotNil(t, second)

	assert.Equal(t, 1, signer.Calls())
	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.PublicKey, second.PublicKey)

	// Stored under the key without public key.
	_, err := store.Get(context.Background(), StorageKey(first.UserAddress, contracts, ""))
	assert.NoError(t, err)

	// Another order is another key.
	third := cache.LoadOrSign(context.Background(), instance, []common.Address{contractB, contractA}, signer, nil)
	require.NotNil(t, third)
	assert.Equal(t, 2, signer.Calls())
}

func TestLoadOrSignWithKeyPair(t *testing.T) {
	signer := newCountingSigner(t)
	store := storage.NewMemoryBackend()
	cache := NewCache(store, discardLogger())
	instance := newInstance()
	contracts := []common.Address{contractA}
	keyPair := &interfaces.Keypair{PublicKey: "0x0a0b", PrivateKey: "0x0c0d"}

	auth := cache.LoadOrSign(context.Background(), instance, contracts, signer, keyPair)
	require.NotNil(t, auth)
	assert.Equal(t, keyPair.PublicKey, auth.PublicKey)
	assert.Equal(t, keyPair.PrivateKey, auth.PrivateKey)

	_, err := store.Get(context.Background(), StorageKey(auth.UserAddress, contracts, keyPair.PublicKey))
	require.NoError(t, err)
	_, err = store.Get(context.Background(), StorageKey(auth.UserAddress, contracts, ""))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	assert.NotNil(t, cache.LoadOrSign(context.Background(), instance, contracts, signer, keyPair))
	assert.Equal(t, 1, signer.Calls())

	// Without the pinned keypair the lookup misses.
	assert.NotNil(t, cache.LoadOrSign(context.Background(), instance, contracts, signer, nil))
	assert.Equal(t, 2, signer.Calls())
}

func TestLoadOrSignExpired(t *testing.T) {
	signer := newCountingSigner(t)
	cache := NewCache(storage.NewMemoryBackend(), discardLogger()).WithDurationDays(1)
	instance := newInstance()
	contracts := []common.Address{contractA}

	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	first := cache.LoadOrSign(context.Background(), instance, contracts, signer, nil)
	require.NotNil(t, first)

	now = now.Add(24 * time.Hour)
	second := cache.LoadOrSign(context.Background(), instance, contracts, signer, nil)
	require.NotNil(t, second)

	assert.Equal(t, 2, signer.Calls())
	assert.Equal(t, now.Unix(), second.StartTimestamp)
}

func TestLoadOrSignRejected(t *testing.T) {
	signer := newCountingSigner(t)
	signer.err = errors.New("user denied message signature")
	store := storage.NewMemoryBackend()
	cache := NewCache(store, discardLogger())

	assert.Nil(t, cache.LoadOrSign(context.Background(), newInstance(), []common.Address{contractA}, signer, nil))
	assert.Equal(t, 0, store.Len())

	_, err := cache.Sign(context.Background(), newInstance(), []common.Address{contractA}, signer, nil)
	assert.ErrorIs(t, err, interfaces.ErrSignatureRejected)
}

func TestLoadOrSignDropsMalformedRecord(t *testing.T) {
	signer := newCountingSigner(t)
	store := storage.NewMemoryBackend()
	cache := NewCache(store, discardLogger())
	user := crypto.PubkeyToAddress(signer.key.PublicKey)
	contracts := []common.Address{contractA}

	require.NoError(t, store.Set(context.Background(), StorageKey(user, contracts, ""), []byte("not json")))
	assert.NotNil(t, cache.LoadOrSign(context.Background(), newInstance(), contracts, signer, nil))
	assert.Equal(t, 1, signer.Calls())
}

// failingStore accepts nothing.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, interfaces.ErrBackendUnavailable
}
func (failingStore) Set(context.Context, string, []byte) error {
	return interfaces.ErrBackendUnavailable
}
func (failingStore) Delete(context.Context, string) error { return interfaces.ErrBackendUnavailable }
func (failingStore) Available(context.Context) bool       { return false }
func (failingStore) Name() string                         { return "failing" }
func (failingStore) LocationURI() string                  { return "failing://" }

func TestLoadOrSignPersistFailure(t *testing.T) {
	signer := newCountingSigner(t)
	cache := NewCache(failingStore{}, discardLogger())

	auth := cache.LoadOrSign(context.Background(), newInstance(), []common.Address{contractA}, signer, nil)
	require.NotNil(t, auth)
	assert.True(t, auth.IsValid())
}

func TestPromptDeduplication(t *testing.T) {
	signer := newCountingSigner(t)
	signer.release = make(chan struct{})
	cache := NewCache(storage.NewMemoryBackend(), discardLogger()).WithPromptDeduplication()
	instance := newInstance()
	contracts := []common.Address{contractA}

	const callers = 5
	results := make([]*DecryptionAuthorization, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.LoadOrSign(context.Background(), instance, contracts, signer, nil)
		}(i)
	}

	require.Eventually(t, func() bool { return signer.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(signer.release)
	wg.Wait()

	assert.Equal(t, 1, signer.Calls())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Signature, r.Signature)
	}
}

func TestCacheMetrics(t *testing.T) {
	signer := newCountingSigner(t)
	c := metrics.NewCollectors("test", prometheus.NewRegistry())
	cache := NewCache(storage.NewMemoryBackend(), discardLogger()).WithMetrics(c)
	instance := newInstance()

	cache.LoadOrSign(context.Background(), instance, []common.Address{contractA}, signer, nil)
	cache.LoadOrSign(context.Background(), instance, []common.Address{contractA}, signer, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.AuthorizationCache.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.AuthorizationCache.WithLabelValues("prompt")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.AuthorizationCache.WithLabelValues("hit")))
}

// switchingSigner reports a different account after its first Address call.
type switchingSigner struct {
	*countingSigner
	other common.Address

	addressCalls int
}

func (s *switchingSigner) Address(ctx context.Context) (common.Address, error) {
	s.addressCalls++
	if s.addressCalls > 1 {
		return s.other, nil
	}
	return s.countingSigner.Address(ctx)
}

func TestLoadOrSignResolvesAccountOnce(t *testing.T) {
	signer := &switchingSigner{
		countingSigner: newCountingSigner(t),
		other:          common.HexToAddress("0x00000000000000000000000000000000000000cc"),
	}
	user, err := signer.countingSigner.Address(context.Background())
	require.NoError(t, err)

	cache := NewCache(storage.NewMemoryBackend(), discardLogger())
	auth := cache.LoadOrSign(context.Background(), newInstance(), []common.Address{contractA}, signer, nil)
	require.NotNil(t, auth)

	assert.Equal(t, 1, signer.addressCalls)
	assert.Equal(t, user, auth.UserAddress)
	assert.Equal(t, 1, signer.Calls())
	assert.NotNil(t, cache.Load(context.Background(), user, []common.Address{contractA}, ""))
	assert.Nil(t, cache.Load(context.Background(), signer.other, []common.Address{contractA}, ""))
}
