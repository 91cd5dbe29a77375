package api

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HTTPServerConfig contains all configuration parameters for the daemon.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the API listens on.
	ListenAddr string

	// MetricsAddr is the address of the Prometheus endpoint.
	// If empty, metrics server will not be started.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is the time to wait after marking the server not ready.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds in-flight requests on shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RequestTimeout bounds encryption and decryption calls to the relayer.
	RequestTimeout time.Duration

	// DefaultContracts is used by GET /api/authorization when the request
	// names no contract.
	DefaultContracts []common.Address
}
