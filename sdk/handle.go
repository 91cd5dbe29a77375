package sdk

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/fhevm-client/interfaces"
)

// Handle is the owned SDK state: the loaded SDK, the source it came from and
// whether it reported a successful initialization.
type Handle struct {
	// loadMu serializes Load and Initialize.
	loadMu sync.Mutex

	mu          sync.RWMutex
	sdk         interfaces.RelayerSDK
	source      string
	initialized bool
	attached    map[string]bool
}

// Global is the default process-wide handle.
var Global = NewHandle()

func NewHandle() *Handle {
	return &Handle{attached: make(map[string]bool)}
}

// SDK returns the loaded SDK or nil.
func (h *Handle) SDK() interfaces.RelayerSDK {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sdk
}

func (h *Handle) Loaded() bool {
	return h.SDK() != nil
}

func (h *Handle) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initialized
}

// Source names where the loaded SDK came from.
func (h *Handle) Source() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.source
}

// Install places an SDK on the handle without going through a source. An
// installed SDK is validated by the next Load like any other.
func (h *Handle) Install(source string, sdk interfaces.RelayerSDK) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sdk = sdk
	h.source = source
	h.initialized = false
	h.attached[source] = true
}

// Reset drops the loaded SDK and every attached source.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sdk = nil
	h.source = ""
	h.initialized = false
	h.attached = make(map[string]bool)
}

// Initialize calls InitSDK unless the handle is already marked initialized,
// and records the reported result.
func (h *Handle) Initialize(ctx context.Context, opts *interfaces.InitSDKOptions) error {
	h.loadMu.Lock()
	defer h.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	sdk := h.SDK()
	if sdk == nil {
		return fmt.Errorf("%w: SDK is not loaded", interfaces.ErrSDKInitFailed)
	}
	if h.Initialized() {
		return nil
	}

	ok, err := sdk.InitSDK(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrSDKInitFailed, err)
	}

	h.mu.Lock()
	h.initialized = ok
	h.mu.Unlock()

	if !ok {
		return interfaces.ErrSDKInitFailed
	}
	return nil
}

func (h *Handle) isAttached(source string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attached[source]
}

func (h *Handle) attach(source string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[source] = true
}

func (h *Handle) detach(source string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attached, source)
}

func (h *Handle) install(source string, sdk interfaces.RelayerSDK) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sdk = sdk
	h.source = source
}
