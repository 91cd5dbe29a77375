package flags

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/ruteri/fhevm-client/api"
	fhevmcommon "github.com/ruteri/fhevm-client/common"
	"github.com/urfave/cli/v2"
)

func envVars(name string) []string {
	return []string{"FHEVM_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

// PreloadEnvFile loads the dotenv file named by --env-file before the flags
// are parsed, so that its variables act as flag defaults. Variables already
// set in the environment win.
func PreloadEnvFile(args []string) error {
	for i, arg := range args {
		var path string
		switch {
		case arg == "--env-file" || arg == "-env-file":
			if i+1 < len(args) {
				path = args[i+1]
			}
		case strings.HasPrefix(arg, "--env-file="):
			path = strings.TrimPrefix(arg, "--env-file=")
		case strings.HasPrefix(arg, "-env-file="):
			path = strings.TrimPrefix(arg, "-env-file=")
		}
		if path != "" {
			return godotenv.Load(path)
		}
	}
	return nil
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := fhevmcommon.SetupLogger(&fhevmcommon.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: fhevmcommon.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, contracts []common.Address) *api.HTTPServerConfig {
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             90 * time.Second,
		RequestTimeout:           cCtx.Duration(RequestTimeoutFlag.Name),
		DefaultContracts:         contracts,
	}
}

var EnvFileFlag = &cli.StringFlag{
	Name:  "env-file",
	Usage: "dotenv file with FHEVM_* variables, loaded before flags are evaluated",
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Value:   "http://127.0.0.1:8545",
	Usage:   "network RPC endpoint",
	EnvVars: envVars("rpc-addr"),
}

var MockChainsFileFlag = &cli.StringFlag{
	Name:    "mock-chains-file",
	Usage:   "YAML or JSON map of chain id to RPC URL of local development nodes",
	EnvVars: envVars("mock-chains-file"),
}

var MockChainFlag = &cli.StringSliceFlag{
	Name:    "mock-chain",
	Usage:   "additional development node as <chainId>=<rpcURL>, repeatable",
	EnvVars: envVars("mock-chain"),
}

var SDKManifestURLFlag = &cli.StringFlag{
	Name:    "sdk-manifest-url",
	Usage:   "URL of the relayer SDK manifest; the bundled manifest is the fallback",
	EnvVars: envVars("sdk-manifest-url"),
}

var SDKManifestFileFlag = &cli.StringFlag{
	Name:    "sdk-manifest-file",
	Usage:   "local relayer SDK manifest, used when no manifest URL is given",
	EnvVars: envVars("sdk-manifest-file"),
}

var RelayerURLFlag = &cli.StringFlag{
	Name:    "relayer-url",
	Usage:   "override the relayer URL of the SDK manifest",
	EnvVars: envVars("relayer-url"),
}

var StorageFlag = &cli.StringSliceFlag{
	Name:    "storage",
	Value:   cli.NewStringSlice("memory://"),
	Usage:   "storage locations for public keys and authorizations (memory, file, leveldb, s3, vault, ipfs), first match wins",
	EnvVars: envVars("storage"),
}

var StoragePassphraseFlag = &cli.StringFlag{
	Name:    "storage-passphrase",
	Usage:   "passphrase for storage locations with ?encrypted=true",
	EnvVars: envVars("storage-passphrase"),
}

var DedupPromptsFlag = &cli.BoolFlag{
	Name:    "dedup-prompts",
	Usage:   "coalesce concurrent signature prompts for the same account and contracts",
	EnvVars: envVars("dedup-prompts"),
}

var PrivateKeyFlag = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex private key of the account",
	EnvVars: envVars("private-key"),
}

var KeystoreFlag = &cli.StringFlag{
	Name:    "keystore",
	Usage:   "keystore v3 file of the account",
	EnvVars: envVars("keystore"),
}

var KeystorePasswordFlag = &cli.StringFlag{
	Name:    "keystore-password",
	Usage:   "password of the keystore file",
	EnvVars: envVars("keystore-password"),
}

var WalletRPCFlag = &cli.StringFlag{
	Name:    "wallet-rpc",
	Usage:   "JSON-RPC endpoint of a wallet that signs with eth_signTypedData_v4",
	EnvVars: envVars("wallet-rpc"),
}

var ContractFlag = &cli.StringFlag{
	Name:    "contract",
	Usage:   "donation contract address",
	EnvVars: envVars("contract"),
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: envVars("listen-addr"),
}

var RequestTimeoutFlag = &cli.DurationFlag{
	Name:    "request-timeout",
	Value:   time.Minute,
	Usage:   "timeout of encryption and decryption calls",
	EnvVars: envVars("request-timeout"),
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: envVars("log-json"),
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: envVars("log-debug"),
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	Usage:   "generate a uuid and add to all log messages",
	EnvVars: envVars("log-uid"),
}
var LogServiceFlag = &cli.StringFlag{
	Name:    "log-service",
	Value:   "fhevm-client",
	Usage:   "add 'service' tag to logs",
	EnvVars: envVars("log-service"),
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: envVars("metrics-addr"),
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

// NetworkFlags select the network and how an instance is built for it.
var NetworkFlags = []cli.Flag{
	EnvFileFlag,
	RpcAddrFlag,
	MockChainsFileFlag,
	MockChainFlag,
	SDKManifestURLFlag,
	SDKManifestFileFlag,
	RelayerURLFlag,
	StorageFlag,
	StoragePassphraseFlag,
	DedupPromptsFlag,
}

var AccountFlags = []cli.Flag{
	PrivateKeyFlag,
	KeystoreFlag,
	KeystorePasswordFlag,
	WalletRPCFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	RequestTimeoutFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	ContractFlag,
}
