package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMockChains(t *testing.T) {
	chains := DefaultMockChains()
	require.Contains(t, chains, LocalChainID)
	assert.Equal(t, "http://localhost:8545", chains[LocalChainID])

	chains[1] = "http://a"
	chains[5] = "http://b"
	assert.Equal(t, []uint64{1, 5, LocalChainID}, chains.ChainIDs())
	assert.NotContains(t, DefaultMockChains(), uint64(1))
}

func TestStorageBackendLocationParse(t *testing.T) {
	tests := []struct {
		location StorageBackendLocation
		valid    bool
	}{
		{"memory://", true},
		{"file:///tmp/fhevm", true},
		{"leveldb:///var/lib/fhevm", true},
		{"s3://bucket/prefix?region=eu-west-1", true},
		{"vault://vault.local:8200/secret/fhevm", true},
		{"ipfs://127.0.0.1:5001/fhevm", true},
		{"github://owner/repo", false},
		{"://bad", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.location), func(t *testing.T) {
			_, err := tt.location.Parse()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidLocationURI)
			}
		})
	}
}
