package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/metrics"
)

// Source produces an SDK, typically by downloading or reading a manifest.
type Source interface {
	Name() string
	Open(ctx context.Context) (interfaces.RelayerSDK, error)
}

// ValidateSDK checks the capability contract: an SDK exposing a network
// configuration.
func ValidateSDK(sdk interfaces.RelayerSDK) error {
	if sdk == nil {
		return fmt.Errorf("%w: SDK is nil", interfaces.ErrSDKIntegrity)
	}
	if sdk.EthereumConfig() == nil {
		return fmt.Errorf("%w: SDK has no network configuration", interfaces.ErrSDKIntegrity)
	}
	return nil
}

type Loader struct {
	handle   *Handle
	primary  Source
	fallback Source
	log      *slog.Logger
	metrics  *metrics.Collectors
}

func NewLoader(handle *Handle, primary, fallback Source, log *slog.Logger) *Loader {
	return &Loader{
		handle:   handle,
		primary:  primary,
		fallback: fallback,
		log:      log,
	}
}

func (l *Loader) WithMetrics(c *metrics.Collectors) *Loader {
	l.metrics = c
	return l
}

func (l *Loader) Handle() *Handle {
	return l.handle
}

// Load ensures the handle carries a valid SDK. An SDK already on the handle
// is validated and never replaced. Otherwise the primary source is tried,
// then the fallback.
func (l *Loader) Load(ctx context.Context) error {
	if l == nil || l.handle == nil {
		return interfaces.ErrEnvironment
	}

	h := l.handle
	h.loadMu.Lock()
	defer h.loadMu.Unlock()

	if existing := h.SDK(); existing != nil {
		return ValidateSDK(existing)
	}

	errPrimary := l.attempt(ctx, l.primary)
	if errPrimary == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.log.Warn("Primary SDK source failed, trying fallback", "err", errPrimary)

	errFallback := l.attempt(ctx, l.fallback)
	if errFallback == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", interfaces.ErrSDKLoadFailed, errors.Join(errPrimary, errFallback))
}

// attempt tries one source at most once. A source that is already attached
// counts as loaded only when the handle validates; failed attempts are
// detached so a later Load may retry them.
func (l *Loader) attempt(ctx context.Context, src Source) error {
	if src == nil {
		return errors.New("no SDK source configured")
	}

	h := l.handle
	name := src.Name()

	if h.isAttached(name) {
		if err := ValidateSDK(h.SDK()); err != nil {
			h.detach(name)
			return fmt.Errorf("%s: attached without a valid SDK: %w", name, err)
		}
		return nil
	}

	h.attach(name)
	sdk, err := src.Open(ctx)
	if err == nil {
		err = ValidateSDK(sdk)
	}
	if err != nil {
		h.detach(name)
		l.metrics.SDKLoad(name, "error")
		return fmt.Errorf("%s: %w", name, err)
	}

	h.install(name, sdk)
	l.metrics.SDKLoad(name, "ok")
	l.log.Info("Relayer SDK loaded", slog.String("source", name))
	return nil
}
