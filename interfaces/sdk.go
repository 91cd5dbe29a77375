package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DefaultPublicParamsBits is the parameter size requested when caching public
// parameters.
const DefaultPublicParamsBits = 2048

// NetworkConfig is the relayer network configuration published by an SDK.
// ACLContractAddress is kept as a string because it is validated by the
// instance factory, not by the decoder.
type NetworkConfig struct {
	ACLContractAddress                        string         `json:"aclContractAddress" yaml:"aclContractAddress"`
	KMSContractAddress                        common.Address `json:"kmsContractAddress" yaml:"kmsContractAddress"`
	InputVerifierContractAddress              common.Address `json:"inputVerifierContractAddress" yaml:"inputVerifierContractAddress"`
	VerifyingContractAddressDecryption        common.Address `json:"verifyingContractAddressDecryption" yaml:"verifyingContractAddressDecryption"`
	VerifyingContractAddressInputVerification common.Address `json:"verifyingContractAddressInputVerification" yaml:"verifyingContractAddressInputVerification"`
	ChainID                                   uint64         `json:"chainId" yaml:"chainId"`
	GatewayChainID                            uint64         `json:"gatewayChainId" yaml:"gatewayChainId"`
	RelayerURL                                string         `json:"relayerUrl" yaml:"relayerUrl"`
}

type PublicKey struct {
	ID   string `json:"publicKeyId" msgpack:"id"`
	Data []byte `json:"publicKey" msgpack:"data"`
}

type PublicParams struct {
	Bits int    `json:"bits" msgpack:"bits"`
	ID   string `json:"publicParamsId" msgpack:"id"`
	Data []byte `json:"publicParams" msgpack:"data"`
}

// PublicMaterial is whatever part of the cached key material is present.
// Either field may be nil independently.
type PublicMaterial struct {
	PublicKey    *PublicKey
	PublicParams *PublicParams
}

// InstanceConfig is used exactly once to construct an Instance.
type InstanceConfig struct {
	NetworkConfig
	Network      NetworkHandle
	PublicKey    *PublicKey
	PublicParams *PublicParams
}

type InitSDKOptions struct {
	// RelayerURL overrides the relayer base URL of the network configuration.
	RelayerURL string
}

// RelayerSDK is the capability contract of a loaded encryption SDK.
type RelayerSDK interface {
	InitSDK(ctx context.Context, opts *InitSDKOptions) (bool, error)
	CreateInstance(ctx context.Context, cfg InstanceConfig) (Instance, error)
	EthereumConfig() *NetworkConfig
}

// Instance is a ready-to-use encryption instance.
type Instance interface {
	GenerateKeypair() (*Keypair, error)
	CreateEIP712(publicKey string, contractAddresses []common.Address, startTimestamp, durationDays int64) (*apitypes.TypedData, error)
	CreateEncryptedInput(contractAddress, userAddress common.Address) EncryptedInput
	UserDecrypt(ctx context.Context, pairs []HandleContractPair, req *UserDecryptRequest) (map[common.Hash]*big.Int, error)
	GetPublicKey() *PublicKey
	GetPublicParams(bits int) *PublicParams
}

// EncryptedInput accumulates clear values to be encrypted for one contract
// and user. Range errors are reported by Encrypt.
type EncryptedInput interface {
	AddBool(v bool) EncryptedInput
	Add8(v uint8) EncryptedInput
	Add16(v uint16) EncryptedInput
	Add32(v uint32) EncryptedInput
	Add64(v uint64) EncryptedInput
	Add128(v *big.Int) EncryptedInput
	Add256(v *big.Int) EncryptedInput
	AddAddress(v common.Address) EncryptedInput
	Encrypt(ctx context.Context) (*EncryptedInputResult, error)
}

// TypedDataSigner produces EIP-712 signatures for a wallet account.
type TypedDataSigner interface {
	Address(ctx context.Context) (common.Address, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}
