package interfaces

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// LocalChainID is the conventional chain id of a local development node.
const LocalChainID uint64 = 31337

// Provider is a JSON-RPC capability, satisfied by *rpc.Client and by wallet
// bridges.
type Provider interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// NetworkHandle identifies the target network either by a live provider or by
// a raw RPC URL. When both are set the provider wins.
type NetworkHandle struct {
	Provider Provider
	URL      string
}

func NetworkFromURL(url string) NetworkHandle {
	return NetworkHandle{URL: url}
}

func NetworkFromProvider(p Provider) NetworkHandle {
	return NetworkHandle{Provider: p}
}

func (n NetworkHandle) IsZero() bool {
	return n.Provider == nil && n.URL == ""
}

func (n NetworkHandle) String() string {
	if n.Provider != nil {
		return "provider"
	}
	return n.URL
}

// MockChains maps chain ids of local development networks to their RPC URL.
type MockChains map[uint64]string

// DefaultMockChains returns the built-in table with the local development chain.
func DefaultMockChains() MockChains {
	return MockChains{LocalChainID: "http://localhost:8545"}
}

// ChainIDs returns the ids in ascending order.
func (m MockChains) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ChainResolution is produced per resolution attempt and never persisted.
// IsMock implies RPCURL is set.
type ChainResolution struct {
	IsMock  bool
	ChainID uint64
	RPCURL  string
}

func (r ChainResolution) String() string {
	return fmt.Sprintf("chain %d (mock=%t, rpc=%q)", r.ChainID, r.IsMock, r.RPCURL)
}

// RelayerMetadata holds the verifier contract addresses reported by a local
// development node.
type RelayerMetadata struct {
	ACLAddress           common.Address
	InputVerifierAddress common.Address
	KMSVerifierAddress   common.Address
}

// Keypair is an ephemeral decryption keypair, both halves hex encoded with a
// 0x prefix.
type Keypair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// HandleContractPair addresses one ciphertext handle held by a contract.
type HandleContractPair struct {
	Handle          common.Hash    `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

// UserDecryptRequest is the full authorization tuple passed to a batched
// user decryption.
type UserDecryptRequest struct {
	PrivateKey        string
	PublicKey         string
	Signature         string
	ContractAddresses []common.Address
	UserAddress       common.Address
	StartTimestamp    int64
	DurationDays      int64
}

// EncryptedInputResult is what a contract call consumes: one handle per added
// value and the proof binding them to the contract and the user.
type EncryptedInputResult struct {
	Handles    []common.Hash
	InputProof []byte
}
