// Package chain classifies a target network as a local mock chain or a
// production network and probes local nodes for relayer metadata.
package chain

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/fhevm-client/interfaces"
)

const (
	clientVersionMethod   = "web3_clientVersion"
	relayerMetadataMethod = "fhevm_relayer_metadata"

	// devNodeMarker is what a local development node reports in its client
	// version string.
	devNodeMarker = "hardhat"
)

var errEmptyNetwork = errors.New("network handle has neither provider nor URL")

// Resolver resolves chain ids. It holds no state between calls.
type Resolver struct {
	log  *slog.Logger
	dial func(ctx context.Context, rawurl string) (*rpc.Client, error)
}

func NewResolver(log *slog.Logger) *Resolver {
	return &Resolver{log: log, dial: rpc.DialContext}
}

// MergeMockChains returns the default table with extra entries laid over it.
func MergeMockChains(extra interfaces.MockChains) interfaces.MockChains {
	merged := interfaces.DefaultMockChains()
	for id, url := range extra {
		merged[id] = url
	}
	return merged
}

// ChainID queries the chain id through the provider or by dialing the URL.
// Errors are returned verbatim.
func (r *Resolver) ChainID(ctx context.Context, network interfaces.NetworkHandle) (uint64, error) {
	if network.Provider != nil {
		var id hexutil.Uint64
		if err := network.Provider.CallContext(ctx, &id, "eth_chainId"); err != nil {
			return 0, err
		}
		return uint64(id), nil
	}

	if network.URL == "" {
		return 0, errEmptyNetwork
	}

	client, err := r.dial(ctx, network.URL)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	id, err := ethclient.NewClient(client).ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// Resolve classifies the network. IsMock holds iff the chain id is in the
// merged table, in which case RPCURL falls back to the table entry.
func (r *Resolver) Resolve(ctx context.Context, network interfaces.NetworkHandle, mockChains interfaces.MockChains) (*interfaces.ChainResolution, error) {
	chainID, err := r.ChainID(ctx, network)
	if err != nil {
		return nil, err
	}

	var rpcURL string
	if network.Provider == nil {
		rpcURL = network.URL
	}

	mockURL, isMock := MergeMockChains(mockChains)[chainID]
	if isMock && rpcURL == "" {
		rpcURL = mockURL
	}

	resolution := &interfaces.ChainResolution{
		IsMock:  isMock,
		ChainID: chainID,
		RPCURL:  rpcURL,
	}
	r.log.Debug("Resolved chain",
		slog.Uint64("chainId", chainID),
		slog.Bool("mock", isMock),
		slog.String("rpcUrl", rpcURL))

	return resolution, nil
}

// ProbeMockNode returns the relayer metadata of a local development node, or
// nil when the node does not identify as one or reports malformed metadata.
// It never fails.
func (r *Resolver) ProbeMockNode(ctx context.Context, rpcURL string) *interfaces.RelayerMetadata {
	client, err := r.dial(ctx, rpcURL)
	if err != nil {
		r.log.Debug("Mock node probe could not dial", slog.String("rpcUrl", rpcURL), "err", err)
		return nil
	}
	defer client.Close()

	var version string
	if err := client.CallContext(ctx, &version, clientVersionMethod); err != nil {
		r.log.Debug("Mock node probe failed", slog.String("method", clientVersionMethod), "err", err)
		return nil
	}
	if !strings.Contains(strings.ToLower(version), devNodeMarker) {
		r.log.Debug("Node is not a local development node", slog.String("clientVersion", version))
		return nil
	}

	var raw map[string]interface{}
	if err := client.CallContext(ctx, &raw, relayerMetadataMethod); err != nil {
		r.log.Debug("Mock node probe failed", slog.String("method", relayerMetadataMethod), "err", err)
		return nil
	}

	metadata, ok := parseRelayerMetadata(raw)
	if !ok {
		r.log.Debug("Mock node reported malformed relayer metadata")
		return nil
	}
	return metadata
}

func parseRelayerMetadata(raw map[string]interface{}) (*interfaces.RelayerMetadata, bool) {
	if raw == nil {
		return nil, false
	}

	acl, ok := addressField(raw, "ACLAddress")
	if !ok {
		return nil, false
	}
	inputVerifier, ok := addressField(raw, "InputVerifierAddress")
	if !ok {
		return nil, false
	}
	kmsVerifier, ok := addressField(raw, "KMSVerifierAddress")
	if !ok {
		return nil, false
	}

	return &interfaces.RelayerMetadata{
		ACLAddress:           acl,
		InputVerifierAddress: inputVerifier,
		KMSVerifierAddress:   kmsVerifier,
	}, true
}

func addressField(raw map[string]interface{}, name string) (common.Address, bool) {
	s, ok := raw[name].(string)
	if !ok || !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
