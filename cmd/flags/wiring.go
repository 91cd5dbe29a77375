package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/fhevm-client/chain"
	"github.com/ruteri/fhevm-client/decryption"
	"github.com/ruteri/fhevm-client/fhevm"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/metrics"
	"github.com/ruteri/fhevm-client/relayer"
	"github.com/ruteri/fhevm-client/sdk"
	"github.com/ruteri/fhevm-client/signer"
	"github.com/ruteri/fhevm-client/storage"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var ErrNoAccount = errors.New("no account configured: use --private-key, --keystore or --wallet-rpc")

// LoadMockChainsFile reads a chain id to RPC URL table. Files ending in .json
// are JSON, anything else is YAML.
func LoadMockChainsFile(path string) (interfaces.MockChains, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	chains := make(interfaces.MockChains)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &chains)
	} else {
		err = yaml.Unmarshal(data, &chains)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid mock chains file %s: %w", path, err)
	}
	return chains, nil
}

// ParseMockChain parses <chainId>=<rpcURL>.
func ParseMockChain(entry string) (uint64, string, error) {
	id, url, ok := strings.Cut(entry, "=")
	if !ok || url == "" {
		return 0, "", fmt.Errorf("invalid mock chain %q, expected <chainId>=<rpcURL>", entry)
	}
	chainID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid mock chain id %q: %w", id, err)
	}
	return chainID, strings.TrimSpace(url), nil
}

// MockChains collects the extra development chains from the file and the
// repeated --mock-chain entries, entries winning over the file.
func MockChains(cCtx *cli.Context) (interfaces.MockChains, error) {
	chains := make(interfaces.MockChains)
	if path := cCtx.String(MockChainsFileFlag.Name); path != "" {
		loaded, err := LoadMockChainsFile(path)
		if err != nil {
			return nil, err
		}
		chains = loaded
	}
	for _, entry := range cCtx.StringSlice(MockChainFlag.Name) {
		id, url, err := ParseMockChain(entry)
		if err != nil {
			return nil, err
		}
		chains[id] = url
	}
	return chains, nil
}

// Store opens the configured storage locations as one fallback store.
func Store(cCtx *cli.Context, log *slog.Logger) (interfaces.KeyValueStore, error) {
	locations := make([]interfaces.StorageBackendLocation, 0)
	for _, l := range cCtx.StringSlice(StorageFlag.Name) {
		locations = append(locations, interfaces.StorageBackendLocation(l))
	}

	factory := storage.NewStorageBackendFactory(log)
	if p := cCtx.String(StoragePassphraseFlag.Name); p != "" {
		factory = factory.WithPassphrase([]byte(p))
	}
	return factory.CreateMultiStore(locations)
}

// SDKSources picks the primary source from the flags. The bundled manifest
// is the fallback unless it already is the primary.
func SDKSources(cCtx *cli.Context, log *slog.Logger) (primary, fallback sdk.Source) {
	switch {
	case cCtx.String(SDKManifestURLFlag.Name) != "":
		return relayer.NewHTTPSource(cCtx.String(SDKManifestURLFlag.Name), log), relayer.BundledSource(log)
	case cCtx.String(SDKManifestFileFlag.Name) != "":
		return relayer.NewFileSource(cCtx.String(SDKManifestFileFlag.Name), log), relayer.BundledSource(log)
	default:
		return relayer.BundledSource(log), nil
	}
}

// Stack is everything needed to build instances and authorize decryption.
type Stack struct {
	Network        interfaces.NetworkHandle
	MockChains     interfaces.MockChains
	Store          interfaces.KeyValueStore
	Resolver       *chain.Resolver
	Loader         *sdk.Loader
	Factory        *fhevm.Factory
	Authorizations *decryption.Cache
}

// Params returns factory parameters for the configured network.
func (s *Stack) Params() fhevm.Params {
	return fhevm.Params{Network: s.Network, MockChains: s.MockChains}
}

// BuildStack wires resolver, loader, caches and factory from the network
// flags. m may be nil.
func BuildStack(cCtx *cli.Context, log *slog.Logger, m *metrics.Collectors) (*Stack, error) {
	mockChains, err := MockChains(cCtx)
	if err != nil {
		return nil, err
	}

	store, err := Store(cCtx, log)
	if err != nil {
		return nil, err
	}

	resolver := chain.NewResolver(log)
	primary, fallback := SDKSources(cCtx, log)
	loader := sdk.NewLoader(sdk.NewHandle(), primary, fallback, log).WithMetrics(m)

	factory := fhevm.NewFactory(resolver, loader, storage.NewPublicKeyStorage(store, log), log).WithMetrics(m)
	if url := cCtx.String(RelayerURLFlag.Name); url != "" {
		factory = factory.WithInitOptions(&interfaces.InitSDKOptions{RelayerURL: url})
	}

	authorizations := decryption.NewCache(store, log).WithMetrics(m)
	if cCtx.Bool(DedupPromptsFlag.Name) {
		authorizations = authorizations.WithPromptDeduplication()
	}

	return &Stack{
		Network:        interfaces.NetworkFromURL(cCtx.String(RpcAddrFlag.Name)),
		MockChains:     mockChains,
		Store:          store,
		Resolver:       resolver,
		Loader:         loader,
		Factory:        factory,
		Authorizations: authorizations,
	}, nil
}

// Account returns the configured signing account. The key signer is nil when
// a wallet RPC signs, since such an account cannot send transactions here.
func Account(ctx context.Context, cCtx *cli.Context) (interfaces.TypedDataSigner, *signer.KeySigner, error) {
	switch {
	case cCtx.String(PrivateKeyFlag.Name) != "":
		s, err := signer.KeySignerFromHex(cCtx.String(PrivateKeyFlag.Name))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case cCtx.String(KeystoreFlag.Name) != "":
		s, err := signer.KeySignerFromKeystore(cCtx.String(KeystoreFlag.Name), cCtx.String(KeystorePasswordFlag.Name))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case cCtx.String(WalletRPCFlag.Name) != "":
		client, err := rpc.DialContext(ctx, cCtx.String(WalletRPCFlag.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("could not dial wallet: %w", err)
		}
		return signer.NewRPCSigner(client), nil, nil
	default:
		return nil, nil, ErrNoAccount
	}
}

// ContractAddress parses --contract.
func ContractAddress(cCtx *cli.Context) (common.Address, error) {
	raw := cCtx.String(ContractFlag.Name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: --contract %q", interfaces.ErrInvalidAddress, raw)
	}
	return common.HexToAddress(raw), nil
}
