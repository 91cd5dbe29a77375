package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/fhevm-client/cryptoutils"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRelayer plays the relayer and the coprocessors behind it.
type fakeRelayer struct {
	*httptest.Server
	t *testing.T

	networkPub  []byte
	networkPriv []byte
	acl         common.Address
	chainID     uint64

	mu     sync.Mutex
	values map[common.Hash]*big.Int
	calls  map[string]int
}

func newFakeRelayer(t *testing.T) *fakeRelayer {
	pub, priv, err := cryptoutils.GenerateDecryptionKeypair()
	require.NoError(t, err)

	r := &fakeRelayer{
		t:           t,
		networkPub:  pub,
		networkPriv: priv,
		acl:         common.HexToAddress(SepoliaManifest().Network.ACLContractAddress),
		chainID:     SepoliaManifest().Network.ChainID,
		values:      make(map[common.Hash]*big.Int),
		calls:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/keyurl", r.keyURL)
	mux.HandleFunc("/keys/pk", func(w http.ResponseWriter, req *http.Request) {
		r.count("pk")
		_, _ = w.Write(r.networkPub)
	})
	mux.HandleFunc("/keys/crs", func(w http.ResponseWriter, req *http.Request) {
		r.count("crs")
		_, _ = w.Write([]byte("crs-2048"))
	})
	mux.HandleFunc("/v1/input-proof", r.inputProof)
	mux.HandleFunc("/v1/user-decrypt", r.userDecrypt)

	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Close)
	return r
}

func (r *fakeRelayer) count(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
}

func (r *fakeRelayer) callCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeRelayer) keyURL(w http.ResponseWriter, req *http.Request) {
	r.count("keyurl")
	fmt.Fprintf(w, `{"response":{"fheKeyInfo":[{"fhePublicKey":{"dataId":"pk-1","urls":["%[1]s/keys/pk"]}}],"crs":{"2048":{"dataId":"crs-1","urls":["%[1]s/keys/crs"]}}}}`, r.URL)
}

func (r *fakeRelayer) inputProof(w http.ResponseWriter, req *http.Request) {
	r.count("input-proof")

	var body instanceutils.InputProofRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	plain, err := cryptoutils.Open(r.networkPriv, body.CiphertextWithInputVerification, InputAAD(body.ContractAddress, body.UserAddress))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	values, err := instanceutils.DeserializeValues(plain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handles := instanceutils.ComputeHandles(body.CiphertextWithInputVerification, instanceutils.ValueTypes(values), r.acl, uint64(body.ContractChainID))
	r.mu.Lock()
	for i, h := range handles {
		r.values[h] = values[i].Value
	}
	r.mu.Unlock()

	key, _ := crypto.GenerateKey()
	var digest []byte
	for _, h := range handles {
		digest = append(digest, h.Bytes()...)
	}
	sig, _ := crypto.Sign(crypto.Keccak256(digest), key)

	_ = json.NewEncoder(w).Encode(instanceutils.InputProofResponse{
		Response: instanceutils.InputProofResult{Handles: handles, Signatures: []hexutil.Bytes{sig}},
	})
}

func (r *fakeRelayer) userDecrypt(w http.ResponseWriter, req *http.Request) {
	r.count("user-decrypt")

	var body instanceutils.UserDecryptPayload
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := instanceutils.UserDecryptResult{Values: make(map[common.Hash]string)}
	r.mu.Lock()
	for _, pair := range body.HandleContractPairs {
		if v, ok := r.values[pair.Handle]; ok {
			result.Values[pair.Handle] = v.String()
		}
	}
	r.mu.Unlock()

	data, _ := json.Marshal(result)
	userKey, err := hexutil.Decode("0x" + body.PublicKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sealed, err := cryptoutils.Seal(userKey, data, body.UserAddress.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var resp instanceutils.SealedUserDecryptResponse
	resp.Response.Payload = sealed
	_ = json.NewEncoder(w).Encode(resp)
}

func (r *fakeRelayer) manifest() Manifest {
	m := SepoliaManifest()
	m.RelayerURL = r.URL
	return m
}

func initializedSDK(t *testing.T, m Manifest) *SDK {
	s := NewSDK(m, discardLogger())
	ok, err := s.InitSDK(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func instanceConfig(s *SDK) interfaces.InstanceConfig {
	return interfaces.InstanceConfig{NetworkConfig: *s.EthereumConfig()}
}

func TestEncryptAndDecrypt(t *testing.T) {
	relayer := newFakeRelayer(t)
	s := initializedSDK(t, relayer.manifest())

	instance, err := s.CreateInstance(context.Background(), instanceConfig(s))
	require.NoError(t, err)

	require.NotNil(t, instance.GetPublicKey())
	assert.Equal(t, "pk-1", instance.GetPublicKey().ID)
	require.NotNil(t, instance.GetPublicParams(2048))
	assert.Equal(t, []byte("crs-2048"), instance.GetPublicParams(2048).Data)
	assert.Nil(t, instance.GetPublicParams(4096))

	contract := common.HexToAddress("0xc0ffee")
	user := common.HexToAddress("0xa11ce")

	input, err := instance.CreateEncryptedInput(contract, user).Add64(42).AddBool(true).Encrypt(context.Background())
	require.NoError(t, err)
	require.Len(t, input.Handles, 2)
	assert.Equal(t, instanceutils.FheUint64, instanceutils.HandleType(input.Handles[0]))

	proof, err := instanceutils.UnpackInputProof(input.InputProof)
	require.NoError(t, err)
	assert.Equal(t, input.Handles, proof.Handles)
	assert.Len(t, proof.Signatures, 1)

	kp, err := instance.GenerateKeypair()
	require.NoError(t, err)

	values, err := instance.UserDecrypt(context.Background(), []interfaces.HandleContractPair{
		{Handle: input.Handles[0], ContractAddress: contract},
		{Handle: input.Handles[1], ContractAddress: contract},
	}, &interfaces.UserDecryptRequest{
		PrivateKey:        kp.PrivateKey,
		PublicKey:         kp.PublicKey,
		Signature:         "0x01",
		ContractAddresses: []common.Address{contract},
		UserAddress:       user,
		StartTimestamp:    time.Now().Unix() - 10,
		DurationDays:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), values[input.Handles[0]].Int64())
	assert.Equal(t, int64(1), values[input.Handles[1]].Int64())
}

func TestUserDecryptRejectsExpiredRequest(t *testing.T) {
	relayer := newFakeRelayer(t)
	s := initializedSDK(t, relayer.manifest())

	instance, err := s.CreateInstance(context.Background(), instanceConfig(s))
	require.NoError(t, err)

	contract := common.HexToAddress("0xc0ffee")
	_, err = instance.UserDecrypt(context.Background(), []interfaces.HandleContractPair{
		{Handle: common.HexToHash("0x01"), ContractAddress: contract},
	}, &interfaces.UserDecryptRequest{
		PrivateKey:        "0x01",
		PublicKey:         "0x02",
		Signature:         "0x03",
		ContractAddresses: []common.Address{contract},
		UserAddress:       common.HexToAddress("0xa11ce"),
		StartTimestamp:    time.Now().Unix() - 3*86400,
		DurationDays:      1,
	})
	assert.ErrorIs(t, err, instanceutils.ErrInvalidDecryptRequest)
	assert.Equal(t, 0, relayer.callCount("user-decrypt"))
}

func TestCreateInstanceUsesCachedMaterial(t *testing.T) {
	relayer := newFakeRelayer(t)
	s := initializedSDK(t, relayer.manifest())

	cfg := instanceConfig(s)
	cfg.PublicKey = &interfaces.PublicKey{ID: "cached", Data: relayer.networkPub}
	cfg.PublicParams = &interfaces.PublicParams{Bits: 2048, ID: "cached-crs", Data: []byte("cached")}

	instance, err := s.CreateInstance(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "cached", instance.GetPublicKey().ID)
	assert.Equal(t, "cached-crs", instance.GetPublicParams(2048).ID)
	assert.Equal(t, 0, relayer.callCount("keyurl"))

	// Only the missing half is fetched.
	cfg.PublicParams = nil
	instance, err = s.CreateInstance(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "cached", instance.GetPublicKey().ID)
	assert.Equal(t, "crs-1", instance.GetPublicParams(2048).ID)
	assert.Equal(t, 1, relayer.callCount("keyurl"))
}

func TestCreateInstanceRejectsBadKey(t *testing.T) {
	relayer := newFakeRelayer(t)
	s := initializedSDK(t, relayer.manifest())

	cfg := instanceConfig(s)
	cfg.PublicKey = &interfaces.PublicKey{ID: "bad", Data: []byte("short")}
	cfg.PublicParams = &interfaces.PublicParams{Bits: 2048}

	_, err := s.CreateInstance(context.Background(), cfg)
	assert.ErrorIs(t, err, cryptoutils.ErrInvalidPublicKey)
}

func TestInitSDK(t *testing.T) {
	m := SepoliaManifest()

	s := NewSDK(m, discardLogger())
	_, err := s.CreateInstance(context.Background(), interfaces.InstanceConfig{})
	assert.ErrorIs(t, err, ErrNotInitialized)

	m.RelayerURL = ""
	m.Network.RelayerURL = ""
	ok, err := NewSDK(m, discardLogger()).InitSDK(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = NewSDK(m, discardLogger()).InitSDK(context.Background(), &interfaces.InitSDKOptions{RelayerURL: "http://relayer.local"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewSDK(m, discardLogger()).InitSDK(context.Background(), &interfaces.InitSDKOptions{RelayerURL: "not a url"})
	assert.Error(t, err)
}

func TestRelayerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown network", http.StatusNotFound)
	}))
	defer srv.Close()

	m := SepoliaManifest()
	m.RelayerURL = srv.URL
	s := initializedSDK(t, m)

	_, err := s.CreateInstance(context.Background(), instanceConfig(s))
	var relayerErr *Error
	require.True(t, errors.As(err, &relayerErr))
	assert.Equal(t, http.StatusNotFound, relayerErr.StatusCode)
	assert.Equal(t, "unknown network", relayerErr.Message)
}

func TestDecodeManifest(t *testing.T) {
	yamlManifest := `
version: "0.2.0"
network:
  aclContractAddress: "0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"
  kmsContractAddress: "0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"
  chainId: 31337
  gatewayChainId: 55815
  relayerUrl: "http://localhost:3000"
`
	m, err := DecodeManifest([]byte(yamlManifest), ".yaml")
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", m.Version)
	assert.Equal(t, uint64(31337), m.Network.ChainID)
	assert.Equal(t, common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"), m.Network.KMSContractAddress)
	assert.Equal(t, "http://localhost:3000", m.RelayerURL)

	_, err = DecodeManifest([]byte(`{"version":"1"}`), "json")
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = DecodeManifest([]byte(`{`), "json")
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestSources(t *testing.T) {
	t.Run("bundled", func(t *testing.T) {
		src := BundledSource(discardLogger())
		assert.Equal(t, "bundled", src.Name())

		sdk, err := src.Open(context.Background())
		require.NoError(t, err)
		cfg := sdk.EthereumConfig()
		assert.Equal(t, uint64(11155111), cfg.ChainID)
		assert.Equal(t, "0x687820221192C5B662b25367F70076A37bc79b6c", cfg.ACLContractAddress)
		assert.Equal(t, "https://relayer.testnet.zama.cloud", cfg.RelayerURL)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sdk.yml")
		require.NoError(t, os.WriteFile(path, []byte("relayerUrl: http://relayer.local\nnetwork:\n  chainId: 31337\n"), 0o600))

		sdk, err := NewFileSource(path, discardLogger()).Open(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(31337), sdk.EthereumConfig().ChainID)
		assert.Equal(t, "http://relayer.local", sdk.EthereumConfig().RelayerURL)

		_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.json"), discardLogger()).Open(context.Background())
		assert.Error(t, err)
	})

	t.Run("http", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(bundledManifest)
		}))
		defer srv.Close()

		src := NewHTTPSource(srv.URL+"/relayer-sdk.json", discardLogger())
		assert.Equal(t, srv.URL+"/relayer-sdk.json", src.Name())

		sdk, err := src.Open(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(55815), sdk.EthereumConfig().GatewayChainID)
	})

	t.Run("http not found", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := NewHTTPSource(srv.URL+"/relayer-sdk.json", discardLogger()).Open(context.Background())
		assert.Error(t, err)
	})
}
