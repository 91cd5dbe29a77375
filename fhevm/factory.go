package fhevm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/metrics"
	"github.com/ruteri/fhevm-client/mock"
	"github.com/ruteri/fhevm-client/sdk"
	"github.com/ruteri/fhevm-client/storage"
)

// Status is a step of an instance build, reported through
// Params.OnStatusChange.
type Status string

const (
	StatusSDKLoading      Status = "sdk-loading"
	StatusSDKLoaded       Status = "sdk-loaded"
	StatusSDKInitializing Status = "sdk-initializing"
	StatusSDKInitialized  Status = "sdk-initialized"
	StatusCreating        Status = "creating"
)

const (
	pathMock    = "mock"
	pathSDK     = "sdk"
	pathResolve = "resolve"
)

// ChainResolver is implemented by *chain.Resolver.
type ChainResolver interface {
	Resolve(ctx context.Context, network interfaces.NetworkHandle, mockChains interfaces.MockChains) (*interfaces.ChainResolution, error)
	ProbeMockNode(ctx context.Context, rpcURL string) *interfaces.RelayerMetadata
}

// MockBuilder constructs a mock-path instance from probed node metadata.
type MockBuilder func(ctx context.Context, rpcURL string, chainID uint64, metadata *interfaces.RelayerMetadata) (interfaces.Instance, error)

type Params struct {
	Network interfaces.NetworkHandle
	// MockChains extends the default table of local development chains.
	MockChains interfaces.MockChains
	// OnStatusChange is called synchronously on every step. Optional.
	OnStatusChange func(Status)
}

type Factory struct {
	resolver    ChainResolver
	loader      *sdk.Loader
	keys        *storage.PublicKeyStorage
	mockBuilder MockBuilder
	initOptions *interfaces.InitSDKOptions
	log         *slog.Logger
	metrics     *metrics.Collectors
}

// NewFactory wires a factory. keys may be nil to disable the public key
// cache.
func NewFactory(resolver ChainResolver, loader *sdk.Loader, keys *storage.PublicKeyStorage, log *slog.Logger) *Factory {
	return &Factory{
		resolver: resolver,
		loader:   loader,
		keys:     keys,
		mockBuilder: func(ctx context.Context, rpcURL string, chainID uint64, metadata *interfaces.RelayerMetadata) (interfaces.Instance, error) {
			return mock.NewInstance(ctx, rpcURL, chainID, metadata, log)
		},
		log: log,
	}
}

func (f *Factory) WithMockBuilder(b MockBuilder) *Factory {
	f.mockBuilder = b
	return f
}

// WithInitOptions sets the options passed to the SDK initializer.
func (f *Factory) WithInitOptions(opts *interfaces.InitSDKOptions) *Factory {
	f.initOptions = opts
	return f
}

func (f *Factory) WithMetrics(c *metrics.Collectors) *Factory {
	f.metrics = c
	return f
}

// CreateInstance runs one instance build. A done context at any step yields
// an error matching both interfaces.ErrAborted and the context error.
func (f *Factory) CreateInstance(ctx context.Context, p Params) (interfaces.Instance, error) {
	instance, path, err := f.create(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			discard(instance)
			f.metrics.InstanceBuild(path, "aborted")
			f.log.Debug("Instance build aborted", slog.String("network", p.Network.String()))
			return nil, aborted(ctx)
		}
		f.metrics.InstanceBuild(path, "error")
		f.log.Error("Instance build failed", slog.String("network", p.Network.String()), "err", err)
		return nil, err
	}

	f.metrics.InstanceBuild(path, "ok")
	return instance, nil
}

func aborted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", interfaces.ErrAborted, context.Cause(ctx))
}

// discard releases a partially built instance if it holds resources.
func discard(instance interfaces.Instance) {
	if c, ok := instance.(interface{ Close() }); ok {
		c.Close()
	}
}

// create returns the build path taken alongside the result. On a context
// error it may also return the instance it was about to hand out.
func (f *Factory) create(ctx context.Context, p Params) (interfaces.Instance, string, error) {
	notify := func(s Status) {
		if p.OnStatusChange != nil {
			p.OnStatusChange(s)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, pathResolve, err
	}

	resolution, err := f.resolver.Resolve(ctx, p.Network, p.MockChains)
	if err != nil {
		return nil, pathResolve, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pathResolve, err
	}

	if resolution.IsMock {
		metadata := f.resolver.ProbeMockNode(ctx, resolution.RPCURL)
		if err := ctx.Err(); err != nil {
			return nil, pathMock, err
		}

		if metadata != nil {
			notify(StatusCreating)
			instance, err := f.mockBuilder(ctx, resolution.RPCURL, resolution.ChainID, metadata)
			if err != nil {
				return nil, pathMock, err
			}
			if err := ctx.Err(); err != nil {
				return instance, pathMock, err
			}

			f.log.Info("Created mock instance", slog.Uint64("chainId", resolution.ChainID), slog.String("rpcUrl", resolution.RPCURL))
			return instance, pathMock, nil
		}

		f.log.Debug("Mock chain without relayer metadata, using the SDK", slog.Uint64("chainId", resolution.ChainID))
	}

	if f.loader == nil {
		return nil, pathSDK, interfaces.ErrEnvironment
	}

	// Only steps actually performed are reported. A loaded handle is still
	// validated by Load.
	handle := f.loader.Handle()
	if handle == nil {
		return nil, pathSDK, interfaces.ErrEnvironment
	}
	loading := !handle.Loaded()
	if loading {
		notify(StatusSDKLoading)
	}
	if err := f.loader.Load(ctx); err != nil {
		return nil, pathSDK, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pathSDK, err
	}
	if loading {
		notify(StatusSDKLoaded)
	}

	initializing := !handle.Initialized()
	if initializing {
		notify(StatusSDKInitializing)
	}
	if err := handle.Initialize(ctx, f.initOptions); err != nil {
		return nil, pathSDK, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pathSDK, err
	}
	if initializing {
		notify(StatusSDKInitialized)
	}

	relayerSDK := handle.SDK()
	networkConfig := relayerSDK.EthereumConfig()
	if !instanceutils.IsValidAddress(networkConfig.ACLContractAddress) {
		return nil, pathSDK, fmt.Errorf("%w: ACL contract address %q", interfaces.ErrInvalidAddress, networkConfig.ACLContractAddress)
	}
	acl := common.HexToAddress(networkConfig.ACLContractAddress)

	material := f.cachedMaterial(ctx, acl)
	if err := ctx.Err(); err != nil {
		return nil, pathSDK, err
	}

	notify(StatusCreating)
	instance, err := relayerSDK.CreateInstance(ctx, interfaces.InstanceConfig{
		NetworkConfig: *networkConfig,
		Network:       p.Network,
		PublicKey:     material.PublicKey,
		PublicParams:  material.PublicParams,
	})
	if err != nil {
		return nil, pathSDK, err
	}
	if err := ctx.Err(); err != nil {
		return instance, pathSDK, err
	}

	f.storeMaterial(ctx, acl, instance)
	if err := ctx.Err(); err != nil {
		return instance, pathSDK, err
	}

	f.log.Info("Created instance",
		slog.Uint64("chainId", resolution.ChainID),
		slog.String("acl", acl.Hex()),
		slog.String("sdk", handle.Source()))
	return instance, pathSDK, nil
}

// cachedMaterial never fails: a broken cache means building without it.
func (f *Factory) cachedMaterial(ctx context.Context, acl common.Address) *interfaces.PublicMaterial {
	if f.keys == nil {
		return &interfaces.PublicMaterial{}
	}

	material, err := f.keys.Get(ctx, acl)
	if err != nil {
		f.log.Warn("Could not read cached public key material", slog.String("acl", acl.Hex()), "err", err)
		return &interfaces.PublicMaterial{}
	}
	return material
}

func (f *Factory) storeMaterial(ctx context.Context, acl common.Address, instance interfaces.Instance) {
	if f.keys == nil {
		return
	}

	key := instance.GetPublicKey()
	params := instance.GetPublicParams(interfaces.DefaultPublicParamsBits)
	if err := f.keys.Set(ctx, acl, key, params); err != nil {
		f.log.Warn("Could not cache public key material", slog.String("acl", acl.Hex()), "err", err)
	}
}
