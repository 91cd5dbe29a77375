package sdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/internal/sdktest"
	"github.com/ruteri/fhevm-client/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadWithoutHandle(t *testing.T) {
	var nilLoader *Loader
	assert.ErrorIs(t, nilLoader.Load(context.Background()), interfaces.ErrEnvironment)

	l := NewLoader(nil, nil, nil, discardLogger())
	assert.ErrorIs(t, l.Load(context.Background()), interfaces.ErrEnvironment)
}

func TestLoad(t *testing.T) {
	errDownload := errors.New("download failed")
	errFile := errors.New("file missing")

	tests := []struct {
		name          string
		primary       *sdktest.FakeSource
		fallback      *sdktest.FakeSource
		expectedErr   error
		expectedFrom  string
		primaryOpens  int
		fallbackOpens int
	}{
		{
			name:          "primary succeeds",
			primary:       sdktest.NewFakeSource("cdn", sdktest.NewFakeSDK(), nil),
			fallback:      sdktest.NewFakeSource("bundled", sdktest.NewFakeSDK(), nil),
			expectedFrom:  "cdn",
			primaryOpens:  1,
			fallbackOpens: 0,
		},
		{
			name:          "fallback after primary failure",
			primary:       sdktest.NewFakeSource("cdn", nil, errDownload),
			fallback:      sdktest.NewFakeSource("bundled", sdktest.NewFakeSDK(), nil),
			expectedFrom:  "bundled",
			primaryOpens:  1,
			fallbackOpens: 1,
		},
		{
			name:          "fallback after invalid primary",
			primary:       sdktest.NewFakeSource("cdn", &sdktest.FakeSDK{}, nil),
			fallback:      sdktest.NewFakeSource("bundled", sdktest.NewFakeSDK(), nil),
			expectedFrom:  "bundled",
			primaryOpens:  1,
			fallbackOpens: 1,
		},
		{
			name:          "both fail",
			primary:       sdktest.NewFakeSource("cdn", nil, errDownload),
			fallback:      sdktest.NewFakeSource("bundled", nil, errFile),
			expectedErr:   interfaces.ErrSDKLoadFailed,
			primaryOpens:  1,
			fallbackOpens: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandle()
			l := NewLoader(h, tt.primary, tt.fallback, discardLogger())

			err := l.Load(context.Background())
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.False(t, h.Loaded())
			} else {
				require.NoError(t, err)
				assert.True(t, h.Loaded())
				assert.Equal(t, tt.expectedFrom, h.Source())
			}
			assert.Equal(t, tt.primaryOpens, tt.primary.Opens())
			assert.Equal(t, tt.fallbackOpens, tt.fallback.Opens())
		})
	}
}

func TestLoadBothFailKeepsCauses(t *testing.T) {
	errDownload := errors.New("download failed")
	errFile := errors.New("file missing")
	l := NewLoader(NewHandle(), sdktest.NewFakeSource("cdn", nil, errDownload), sdktest.NewFakeSource("bundled", nil, errFile), discardLogger())

	err := l.Load(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrSDKLoadFailed)
	assert.ErrorIs(t, err, errDownload)
	assert.ErrorIs(t, err, errFile)
}

func TestLoadRetriesAfterFailure(t *testing.T) {
	h := NewHandle()
	primary := sdktest.NewFakeSource("cdn", nil, errors.New("offline"))
	fallback := sdktest.NewFakeSource("bundled", nil, errors.New("missing"))
	l := NewLoader(h, primary, fallback, discardLogger())

	assert.ErrorIs(t, l.Load(context.Background()), interfaces.ErrSDKLoadFailed)

	primary.SetResult(sdktest.NewFakeSDK(), nil)
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, 2, primary.Opens())
	assert.Equal(t, "cdn", h.Source())
}

func TestLoadKeepsExistingSDK(t *testing.T) {
	h := NewHandle()
	existing := sdktest.NewFakeSDK()
	h.Install("host", existing)

	primary := sdktest.NewFakeSource("cdn", sdktest.NewFakeSDK(), nil)
	l := NewLoader(h, primary, nil, discardLogger())

	require.NoError(t, l.Load(context.Background()))
	assert.Same(t, existing, h.SDK())
	assert.Equal(t, 0, primary.Opens())

	// Loading again is a no-op.
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, 0, primary.Opens())
}

func TestLoadInvalidExistingSDK(t *testing.T) {
	h := NewHandle()
	h.Install("host", &sdktest.FakeSDK{})

	primary := sdktest.NewFakeSource("cdn", sdktest.NewFakeSDK(), nil)
	l := NewLoader(h, primary, nil, discardLogger())

	assert.ErrorIs(t, l.Load(context.Background()), interfaces.ErrSDKIntegrity)
	assert.Equal(t, 0, primary.Opens())
}

func TestLoadCancelledSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := sdktest.NewFakeSource("cdn", sdktest.NewFakeSDK(), nil)
	fallback := sdktest.NewFakeSource("bundled", sdktest.NewFakeSDK(), nil)
	l := NewLoader(NewHandle(), primary, fallback, discardLogger())

	assert.ErrorIs(t, l.Load(ctx), context.Canceled)
	assert.Equal(t, 0, fallback.Opens())
}

func TestLoadMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors("test", reg)

	l := NewLoader(NewHandle(), sdktest.NewFakeSource("cdn", nil, errors.New("offline")), sdktest.NewFakeSource("bundled", sdktest.NewFakeSDK(), nil), discardLogger()).WithMetrics(c)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.SDKLoads.WithLabelValues("cdn", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.SDKLoads.WithLabelValues("bundled", "ok")))
}

func TestInitialize(t *testing.T) {
	t.Run("not loaded", func(t *testing.T) {
		assert.ErrorIs(t, NewHandle().Initialize(context.Background(), nil), interfaces.ErrSDKInitFailed)
	})

	t.Run("initializes once", func(t *testing.T) {
		h := NewHandle()
		fake := sdktest.NewFakeSDK()
		h.Install("host", fake)

		require.NoError(t, h.Initialize(context.Background(), nil))
		require.NoError(t, h.Initialize(context.Background(), nil))
		assert.True(t, h.Initialized())
		assert.Equal(t, 1, fake.InitCalls())
	})

	t.Run("reports false", func(t *testing.T) {
		h := NewHandle()
		fake := sdktest.NewFakeSDK()
		fake.InitResult = false
		h.Install("host", fake)

		assert.ErrorIs(t, h.Initialize(context.Background(), nil), interfaces.ErrSDKInitFailed)
		assert.False(t, h.Initialized())

		// Not marked initialized, so the next call retries.
		fake.InitResult = true
		require.NoError(t, h.Initialize(context.Background(), nil))
		assert.Equal(t, 2, fake.InitCalls())
	})

	t.Run("init error", func(t *testing.T) {
		h := NewHandle()
		fake := sdktest.NewFakeSDK()
		fake.InitErr = errors.New("wasm trap")
		h.Install("host", fake)

		err := h.Initialize(context.Background(), nil)
		assert.ErrorIs(t, err, interfaces.ErrSDKInitFailed)
		assert.ErrorIs(t, err, fake.InitErr)
	})
}

func TestReset(t *testing.T) {
	h := NewHandle()
	h.Install("host", sdktest.NewFakeSDK())
	require.NoError(t, h.Initialize(context.Background(), nil))

	h.Reset()
	assert.False(t, h.Loaded())
	assert.False(t, h.Initialized())
	assert.Empty(t, h.Source())
}
