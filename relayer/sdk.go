package relayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/fhevm-client/cryptoutils"
	"github.com/ruteri/fhevm-client/instanceutils"
	"github.com/ruteri/fhevm-client/interfaces"
)

var ErrNotInitialized = errors.New("relayer SDK is not initialized")

// SDK is the hosted implementation of interfaces.RelayerSDK.
type SDK struct {
	manifest   Manifest
	log        *slog.Logger
	httpClient *retryablehttp.Client

	mu     sync.RWMutex
	client *client
}

var _ interfaces.RelayerSDK = (*SDK)(nil)

func NewSDK(manifest Manifest, log *slog.Logger) *SDK {
	return &SDK{
		manifest: manifest,
		log:      log,
	}
}

// WithHTTPClient replaces the relayer transport. Must be called before
// InitSDK.
func (s *SDK) WithHTTPClient(c *retryablehttp.Client) *SDK {
	s.httpClient = c
	return s
}

func (s *SDK) Manifest() Manifest {
	return s.manifest
}

// InitSDK prepares the relayer transport. It reports false when no relayer
// URL is known.
func (s *SDK) InitSDK(ctx context.Context, opts *interfaces.InitSDKOptions) (bool, error) {
	base := s.manifest.RelayerURL
	if opts != nil && opts.RelayerURL != "" {
		base = opts.RelayerURL
	}
	if base == "" {
		return false, nil
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return false, fmt.Errorf("invalid relayer URL %q: %w", base, err)
	}

	httpClient := s.httpClient
	if httpClient == nil {
		httpClient = NewHTTPClient(s.log)
	}

	s.mu.Lock()
	s.client = newClient(base, httpClient)
	s.mu.Unlock()

	s.log.Debug("Relayer SDK initialized", slog.String("relayer", base), slog.String("version", s.manifest.Version))
	return true, nil
}

func (s *SDK) EthereumConfig() *interfaces.NetworkConfig {
	cfg := s.manifest.Network
	if cfg.RelayerURL == "" {
		cfg.RelayerURL = s.manifest.RelayerURL
	}
	return &cfg
}

// CreateInstance builds an instance for cfg. Public material missing from
// cfg is fetched from the relayer key URLs.
func (s *SDK) CreateInstance(ctx context.Context, cfg interfaces.InstanceConfig) (interfaces.Instance, error) {
	s.mu.RLock()
	c := s.client
	s.mu.RUnlock()
	if c == nil {
		return nil, ErrNotInitialized
	}

	publicKey, publicParams := cfg.PublicKey, cfg.PublicParams
	if publicKey == nil || publicParams == nil {
		fetchedKey, fetchedParams, err := fetchPublicMaterial(ctx, c, interfaces.DefaultPublicParamsBits)
		if err != nil {
			return nil, err
		}
		if publicKey == nil {
			publicKey = fetchedKey
		}
		if publicParams == nil {
			publicParams = fetchedParams
		}
	}

	if len(publicKey.Data) != cryptoutils.PublicKeySize {
		return nil, fmt.Errorf("%w: network public key has %d bytes", cryptoutils.ErrInvalidPublicKey, len(publicKey.Data))
	}

	return &Instance{
		config:       cfg,
		client:       c,
		publicKey:    publicKey,
		publicParams: publicParams,
		log:          s.log,
	}, nil
}

func fetchPublicMaterial(ctx context.Context, c *client, bits int) (*interfaces.PublicKey, *interfaces.PublicParams, error) {
	var keyURLs instanceutils.KeyURLResponse
	if err := c.do(ctx, http.MethodGet, "/v1/keyurl", nil, &keyURLs); err != nil {
		return nil, nil, fmt.Errorf("could not fetch key URLs: %w", err)
	}

	infos := keyURLs.Response.FheKeyInfo
	if len(infos) == 0 || len(infos[0].FhePublicKey.URLs) == 0 {
		return nil, nil, errors.New("relayer published no public key")
	}
	keyInfo := infos[0].FhePublicKey

	crs, ok := keyURLs.Response.CRS[strconv.Itoa(bits)]
	if !ok || len(crs.URLs) == 0 {
		return nil, nil, fmt.Errorf("relayer published no %d-bit public parameters", bits)
	}

	keyData, err := c.fetch(ctx, keyInfo.URLs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("could not download public key: %w", err)
	}
	paramsData, err := c.fetch(ctx, crs.URLs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("could not download public parameters: %w", err)
	}

	return &interfaces.PublicKey{ID: keyInfo.DataID, Data: keyData},
		&interfaces.PublicParams{Bits: bits, ID: crs.DataID, Data: paramsData},
		nil
}
