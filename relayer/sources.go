package relayer

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/sdk"
)

//go:embed manifests/sepolia.json
var bundledManifest []byte

var (
	_ sdk.Source = (*HTTPSource)(nil)
	_ sdk.Source = (*FileSource)(nil)
	_ sdk.Source = bundledSource{}
)

// HTTPSource downloads the manifest from a CDN.
type HTTPSource struct {
	URL    string
	Client *retryablehttp.Client
	log    *slog.Logger
}

func NewHTTPSource(url string, log *slog.Logger) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: NewHTTPClient(log),
		log:    log,
	}
}

func (s *HTTPSource) Name() string {
	return s.URL
}

func (s *HTTPSource) Open(ctx context.Context) (interfaces.RelayerSDK, error) {
	data, err := newClient("", s.Client).fetch(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("could not download SDK manifest: %w", err)
	}

	m, err := DecodeManifest(data, formatOf(s.URL))
	if err != nil {
		return nil, err
	}
	return NewSDK(*m, s.log).WithHTTPClient(s.Client), nil
}

// FileSource reads the manifest from disk, as JSON or YAML depending on the
// file extension.
type FileSource struct {
	Path string
	log  *slog.Logger
}

func NewFileSource(path string, log *slog.Logger) *FileSource {
	return &FileSource{Path: path, log: log}
}

func (s *FileSource) Name() string {
	return "file:" + s.Path
}

func (s *FileSource) Open(ctx context.Context) (interfaces.RelayerSDK, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read SDK manifest: %w", err)
	}

	m, err := DecodeManifest(data, formatOf(s.Path))
	if err != nil {
		return nil, err
	}
	return NewSDK(*m, s.log), nil
}

type bundledSource struct {
	log *slog.Logger
}

// BundledSource serves the Sepolia manifest compiled into the binary.
func BundledSource(log *slog.Logger) sdk.Source {
	return bundledSource{log: log}
}

func (bundledSource) Name() string {
	return "bundled"
}

func (s bundledSource) Open(ctx context.Context) (interfaces.RelayerSDK, error) {
	m, err := DecodeManifest(bundledManifest, "json")
	if err != nil {
		return nil, err
	}
	return NewSDK(*m, s.log), nil
}

// SepoliaManifest returns the bundled manifest.
func SepoliaManifest() Manifest {
	m, err := DecodeManifest(bundledManifest, "json")
	if err != nil {
		panic(err)
	}
	return *m
}
