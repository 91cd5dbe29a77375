// Package sdktest provides in-memory fakes of the relayer SDK for tests.
package sdktest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
)

// SepoliaConfig is a well-formed network configuration.
func SepoliaConfig() *interfaces.NetworkConfig {
	return &interfaces.NetworkConfig{
		ACLContractAddress:                        "0x687820221192C5B662b25367F70076A37bc79b6c",
		KMSContractAddress:                        common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"),
		InputVerifierContractAddress:              common.HexToAddress("0xbc91f3daD1A5F19F8390c400196e58073B6a0BC4"),
		VerifyingContractAddressDecryption:        common.HexToAddress("0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1"),
		VerifyingContractAddressInputVerification: common.HexToAddress("0x7048C39f048125eDa9d678AEbaDfB22F7900a29F"),
		ChainID:        11155111,
		GatewayChainID: 55815,
		RelayerURL:     "https://relayer.testnet.zama.cloud",
	}
}

// FakeSDK records calls and creates FakeInstances.
type FakeSDK struct {
	mu sync.Mutex

	Config     *interfaces.NetworkConfig
	InitResult bool
	InitErr    error
	CreateErr  error

	// BeforeCreate, if set, runs at the start of CreateInstance.
	BeforeCreate func(ctx context.Context) error

	// Instance is returned by CreateInstance when set.
	Instance *FakeInstance

	initCalls   int
	createCalls int
	lastConfig  *interfaces.InstanceConfig
}

func NewFakeSDK() *FakeSDK {
	return &FakeSDK{Config: SepoliaConfig(), InitResult: true}
}

func (s *FakeSDK) InitSDK(ctx context.Context, opts *interfaces.InitSDKOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	return s.InitResult, s.InitErr
}

func (s *FakeSDK) CreateInstance(ctx context.Context, cfg interfaces.InstanceConfig) (interfaces.Instance, error) {
	s.mu.Lock()
	s.createCalls++
	c := cfg
	s.lastConfig = &c
	before := s.BeforeCreate
	s.mu.Unlock()

	if before != nil {
		if err := before(ctx); err != nil {
			return nil, err
		}
	}
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	if s.Instance != nil {
		return s.Instance, nil
	}
	return NewFakeInstance(cfg), nil
}

func (s *FakeSDK) EthereumConfig() *interfaces.NetworkConfig {
	return s.Config
}

func (s *FakeSDK) InitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls
}

func (s *FakeSDK) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// LastConfig returns the configuration of the latest CreateInstance call.
func (s *FakeSDK) LastConfig() *interfaces.InstanceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConfig
}

// FakeInstance serves fixed public material and decrypts from a lookup table.
type FakeInstance struct {
	mu sync.Mutex

	Config       interfaces.InstanceConfig
	PublicKey    *interfaces.PublicKey
	PublicParams *interfaces.PublicParams
	Values       map[common.Hash]*big.Int
	DecryptErr   error

	keypairs     int
	decryptCalls int
	lastRequest  *interfaces.UserDecryptRequest
}

// NewFakeInstance echoes the public material passed in cfg, or makes up its
// own when cfg carries none.
func NewFakeInstance(cfg interfaces.InstanceConfig) *FakeInstance {
	inst := &FakeInstance{
		Config:       cfg,
		PublicKey:    cfg.PublicKey,
		PublicParams: cfg.PublicParams,
		Values:       make(map[common.Hash]*big.Int),
	}
	if inst.PublicKey == nil {
		inst.PublicKey = &interfaces.PublicKey{ID: "fake-key", Data: []byte("fake public key")}
	}
	if inst.PublicParams == nil {
		inst.PublicParams = &interfaces.PublicParams{Bits: interfaces.DefaultPublicParamsBits, ID: "fake-params", Data: []byte("fake params")}
	}
	return inst
}

func (i *FakeInstance) GenerateKeypair() (*interfaces.Keypair, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keypairs++
	return &interfaces.Keypair{
		PublicKey:  fmt.Sprintf("0x%064x", i.keypairs),
		PrivateKey: fmt.Sprintf("0x%064x", 1000+i.keypairs),
	}, nil
}

func (i *FakeInstance) CreateEIP712(publicKey string, contractAddresses []common.Address, startTimestamp, durationDays int64) (*apitypes.TypedData, error) {
	domain := instanceutils.UserDecryptDomain{
		ChainID:           i.Config.GatewayChainID,
		VerifyingContract: i.Config.VerifyingContractAddressDecryption,
	}
	return instanceutils.UserDecryptTypedData(domain, publicKey, contractAddresses, i.Config.ChainID, startTimestamp, durationDays)
}

// CreateEncryptedInput derives handles locally and uses the clear values as
// the proof.
func (i *FakeInstance) CreateEncryptedInput(contractAddress, userAddress common.Address) interfaces.EncryptedInput {
	return instanceutils.NewInputBuilder(contractAddress, userAddress, func(ctx context.Context, c, u common.Address, values []instanceutils.EncryptedValue) (*interfaces.EncryptedInputResult, error) {
		blob := instanceutils.SerializeValues(values)
		handles := instanceutils.ComputeHandles(blob, instanceutils.ValueTypes(values), common.HexToAddress(i.Config.ACLContractAddress), i.Config.ChainID)

		i.mu.Lock()
		for n, h := range handles {
			i.Values[h] = new(big.Int).Set(values[n].Value)
		}
		i.mu.Unlock()

		return &interfaces.EncryptedInputResult{Handles: handles, InputProof: blob}, nil
	})
}

func (i *FakeInstance) UserDecrypt(ctx context.Context, pairs []interfaces.HandleContractPair, req *interfaces.UserDecryptRequest) (map[common.Hash]*big.Int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.decryptCalls++
	i.lastRequest = req
	if i.DecryptErr != nil {
		return nil, i.DecryptErr
	}

	out := make(map[common.Hash]*big.Int, len(pairs))
	for _, p := range pairs {
		v, ok := i.Values[p.Handle]
		if !ok {
			return nil, errors.New("unknown handle " + p.Handle.Hex())
		}
		out[p.Handle] = new(big.Int).Set(v)
	}
	return out, nil
}

func (i *FakeInstance) GetPublicKey() *interfaces.PublicKey {
	return i.PublicKey
}

func (i *FakeInstance) GetPublicParams(bits int) *interfaces.PublicParams {
	if i.PublicParams == nil || i.PublicParams.Bits != bits {
		return nil
	}
	return i.PublicParams
}

// SetValue makes handle decrypt to v.
func (i *FakeInstance) SetValue(handle common.Hash, v *big.Int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Values[handle] = v
}

func (i *FakeInstance) DecryptCalls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.decryptCalls
}

func (i *FakeInstance) LastRequest() *interfaces.UserDecryptRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastRequest
}

// FakeSource hands out a fixed SDK or error and counts opens.
type FakeSource struct {
	mu    sync.Mutex
	name  string
	sdk   interfaces.RelayerSDK
	err   error
	opens int
}

func NewFakeSource(name string, sdk interfaces.RelayerSDK, err error) *FakeSource {
	return &FakeSource{name: name, sdk: sdk, err: err}
}

func (s *FakeSource) Name() string {
	return s.name
}

func (s *FakeSource) Open(ctx context.Context) (interfaces.RelayerSDK, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.sdk, s.err
}

// SetResult changes what the next Open returns.
func (s *FakeSource) SetResult(sdk interfaces.RelayerSDK, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sdk = sdk
	s.err = err
}

func (s *FakeSource) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}
