package relayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ruteri/fhevm-client/interfaces"
	"gopkg.in/yaml.v3"
)

// Manifest describes one relayer SDK deployment.
type Manifest struct {
	Version    string                   `json:"version" yaml:"version"`
	RelayerURL string                   `json:"relayerUrl" yaml:"relayerUrl"`
	Network    interfaces.NetworkConfig `json:"network" yaml:"network"`
}

var ErrInvalidManifest = errors.New("invalid SDK manifest")

// DecodeManifest parses a JSON or YAML manifest. format is a file extension
// or a bare format name; anything else is treated as JSON.
func DecodeManifest(data []byte, format string) (*Manifest, error) {
	var m Manifest
	var err error

	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if m.RelayerURL == "" {
		m.RelayerURL = m.Network.RelayerURL
	}
	if m.Network.ChainID == 0 {
		return nil, fmt.Errorf("%w: missing chain id", ErrInvalidManifest)
	}
	return &m, nil
}

func formatOf(path string) string {
	return filepath.Ext(path)
}
