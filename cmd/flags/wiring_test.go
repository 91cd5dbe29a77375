package flags

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/relayer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runWith parses args with the given flags and hands the context to fn.
func runWith(t *testing.T, fs []cli.Flag, args []string, fn func(cCtx *cli.Context) error) error {
	t.Helper()
	app := &cli.App{
		Name:   "test",
		Flags:  fs,
		Writer: io.Discard,
		Action: fn,
	}
	return app.Run(append([]string{"test"}, args...))
}

func TestParseMockChain(t *testing.T) {
	tests := []struct {
		entry   string
		id      uint64
		url     string
		wantErr bool
	}{
		{entry: "31337=http://localhost:8545", id: 31337, url: "http://localhost:8545"},
		{entry: " 1337 = http://node:8545 ", id: 1337, url: "http://node:8545"},
		{entry: "31337", wantErr: true},
		{entry: "31337=", wantErr: true},
		{entry: "abc=http://localhost:8545", wantErr: true},
		{entry: "-1=http://localhost:8545", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			id, url, err := ParseMockChain(tt.entry)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.url, url)
		})
	}
}

func TestLoadMockChainsFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "chains.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("31337: http://localhost:8545\n1337: http://devnet:8545\n"), 0o600))
	chains, err := LoadMockChainsFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, interfaces.MockChains{31337: "http://localhost:8545", 1337: "http://devnet:8545"}, chains)

	jsonPath := filepath.Join(dir, "chains.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"1337":"http://devnet:8545"}`), 0o600))
	chains, err = LoadMockChainsFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, interfaces.MockChains{1337: "http://devnet:8545"}, chains)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"x":1}`), 0o600))
	_, err = LoadMockChainsFile(badPath)
	assert.Error(t, err)

	_, err = LoadMockChainsFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMockChainsFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yml")
	require.NoError(t, os.WriteFile(path, []byte("1337: http://file:8545\n9000: http://other:8545\n"), 0o600))

	var chains interfaces.MockChains
	err := runWith(t, NetworkFlags, []string{
		"--mock-chains-file", path,
		"--mock-chain", "1337=http://flag:8545",
	}, func(cCtx *cli.Context) (err error) {
		chains, err = MockChains(cCtx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, interfaces.MockChains{1337: "http://flag:8545", 9000: "http://other:8545"}, chains)
}

func TestPreloadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FHEVM_RPC_ADDR=http://from-env-file:8545\n"), 0o600))
	t.Setenv("FHEVM_RPC_ADDR", "")
	require.NoError(t, os.Unsetenv("FHEVM_RPC_ADDR"))

	require.NoError(t, PreloadEnvFile([]string{"cmd", "--env-file=" + path}))
	assert.Equal(t, "http://from-env-file:8545", os.Getenv("FHEVM_RPC_ADDR"))

	var rpcAddr string
	err := runWith(t, NetworkFlags, []string{"--env-file", path}, func(cCtx *cli.Context) error {
		rpcAddr = cCtx.String(RpcAddrFlag.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "http://from-env-file:8545", rpcAddr)

	assert.NoError(t, PreloadEnvFile([]string{"cmd"}))
	assert.Error(t, PreloadEnvFile([]string{"cmd", "--env-file", filepath.Join(t.TempDir(), "missing")}))
}

func TestSDKSources(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name         string
		args         []string
		wantPrimary  interface{}
		wantFallback bool
	}{
		{name: "bundled", args: nil, wantFallback: false},
		{name: "url", args: []string{"--sdk-manifest-url", "https://cdn.example/sdk.json"}, wantPrimary: &relayer.HTTPSource{}, wantFallback: true},
		{name: "file", args: []string{"--sdk-manifest-file", "/tmp/sdk.json"}, wantPrimary: &relayer.FileSource{}, wantFallback: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runWith(t, NetworkFlags, tt.args, func(cCtx *cli.Context) error {
				primary, fallback := SDKSources(cCtx, log)
				require.NotNil(t, primary)
				if tt.wantPrimary != nil {
					assert.IsType(t, tt.wantPrimary, primary)
				}
				assert.Equal(t, tt.wantFallback, fallback != nil)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestBuildStack(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var stack *Stack
	err := runWith(t, NetworkFlags, []string{
		"--rpc-addr", "http://localhost:9545",
		"--mock-chain", "1337=http://localhost:9545",
		"--dedup-prompts",
	}, func(cCtx *cli.Context) (err error) {
		stack, err = BuildStack(cCtx, log, nil)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9545", stack.Network.URL)
	assert.Equal(t, interfaces.MockChains{1337: "http://localhost:9545"}, stack.Params().MockChains)
	assert.NotNil(t, stack.Factory)
	assert.NotNil(t, stack.Authorizations)

	require.NoError(t, stack.Store.Set(context.Background(), "k", []byte("v")))
	v, err := stack.Store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestBuildStackRejectsBadStorage(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := runWith(t, NetworkFlags, []string{"--storage", "ftp://nowhere"}, func(cCtx *cli.Context) error {
		_, err := BuildStack(cCtx, log, nil)
		return err
	})
	assert.Error(t, err)
}

func TestAccount(t *testing.T) {
	const key = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	ctx := context.Background()

	err := runWith(t, AccountFlags, []string{"--private-key", "0x" + key}, func(cCtx *cli.Context) error {
		account, keySigner, err := Account(ctx, cCtx)
		require.NoError(t, err)
		require.NotNil(t, keySigner)
		addr, err := account.Address(ctx)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)
		return nil
	})
	require.NoError(t, err)

	err = runWith(t, AccountFlags, nil, func(cCtx *cli.Context) error {
		_, _, err := Account(ctx, cCtx)
		return err
	})
	assert.ErrorIs(t, err, ErrNoAccount)

	err = runWith(t, AccountFlags, []string{"--private-key", "zz"}, func(cCtx *cli.Context) error {
		_, _, err := Account(ctx, cCtx)
		return err
	})
	assert.Error(t, err)
}

func TestContractAddress(t *testing.T) {
	fs := []cli.Flag{ContractFlag}

	err := runWith(t, fs, []string{"--contract", "0x5FbDB2315678afecb367f032d93F642f64180aa3"}, func(cCtx *cli.Context) error {
		addr, err := ContractAddress(cCtx)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), addr)
		return nil
	})
	require.NoError(t, err)

	err = runWith(t, fs, []string{"--contract", "0x12"}, func(cCtx *cli.Context) error {
		_, err := ContractAddress(cCtx)
		return err
	})
	assert.ErrorIs(t, err, interfaces.ErrInvalidAddress)
}
