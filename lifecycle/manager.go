// Package lifecycle keeps one encryption instance current for a changing
// network connection.
//
// Every change of network, mock-chain table or enabled flag cancels the
// build in flight and starts a new one. Results of a cancelled build are
// dropped: observers only ever see the outcome of the latest build.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ruteri/fhevm-client/fhevm"
	"github.com/ruteri/fhevm-client/interfaces"
	"github.com/ruteri/fhevm-client/metrics"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

var allStatuses = []string{string(StatusIdle), string(StatusLoading), string(StatusReady), string(StatusError)}

var ErrClosed = errors.New("lifecycle manager closed")

// Builder is implemented by *fhevm.Factory.
type Builder interface {
	CreateInstance(ctx context.Context, p fhevm.Params) (interfaces.Instance, error)
}

// State is what observers see. Instance is set only when Status is ready,
// Err only when it is error.
type State struct {
	Status   Status
	Instance interfaces.Instance
	Err      error
	// Step is the last factory step reported by the current build.
	Step fhevm.Status
	// Generation identifies the build the state belongs to.
	Generation uint64
}

type Manager struct {
	builder Builder
	log     *slog.Logger
	metrics *metrics.Collectors

	mu          sync.Mutex
	network     interfaces.NetworkHandle
	mockChains  interfaces.MockChains
	enabled     bool
	generation  uint64
	cancel      context.CancelFunc
	state       State
	subscribers map[int]chan State
	nextSub     int
	closed      bool
	wg          sync.WaitGroup
}

func NewManager(builder Builder, log *slog.Logger) *Manager {
	return &Manager{
		builder:     builder,
		log:         log,
		enabled:     true,
		state:       State{Status: StatusIdle},
		subscribers: make(map[int]chan State),
	}
}

func (m *Manager) WithMetrics(c *metrics.Collectors) *Manager {
	m.metrics = c
	m.metrics.SetLifecycleStatus(string(StatusIdle), allStatuses)
	return m
}

// SetNetwork switches to another network and rebuilds.
func (m *Manager) SetNetwork(network interfaces.NetworkHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network = network
	m.restartLocked()
}

// SetMockChains replaces the caller's mock-chain table and rebuilds.
func (m *Manager) SetMockChains(mockChains interfaces.MockChains) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mockChains = mockChains
	m.restartLocked()
}

// SetEnabled(false) aborts the build in flight and goes idle.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled == enabled {
		return
	}
	m.enabled = enabled
	m.restartLocked()
}

// Refresh rebuilds for the current network.
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restartLocked()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel carrying the latest state, starting with the
// current one. Slow readers skip intermediate states. The channel is closed
// by unsubscribe or Close.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	ch <- m.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subscribers[id]; ok {
				delete(m.subscribers, id)
				close(sub)
			}
		})
	}
}

// WaitReady blocks until a build succeeds or fails, or ctx is done.
func (m *Manager) WaitReady(ctx context.Context) (interfaces.Instance, error) {
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return nil, ErrClosed
			}
			switch s.Status {
			case StatusReady:
				return s.Instance, nil
			case StatusError:
				return nil, s.Err
			}
		}
	}
}

// Close aborts the build in flight and waits for it to return.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.generation++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) restartLocked() {
	if m.closed {
		return
	}

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.generation++
	gen := m.generation

	if !m.enabled || m.network.IsZero() {
		m.publishLocked(State{Status: StatusIdle, Generation: gen})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.publishLocked(State{Status: StatusLoading, Generation: gen})

	params := fhevm.Params{
		Network:    m.network,
		MockChains: m.mockChains,
		OnStatusChange: func(step fhevm.Status) {
			m.step(gen, step)
		},
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, gen, params)
	}()
}

func (m *Manager) run(ctx context.Context, gen uint64, params fhevm.Params) {
	instance, err := m.builder.CreateInstance(ctx, params)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || ctx.Err() != nil {
		m.log.Debug("Dropping result of superseded build", slog.Uint64("generation", gen))
		return
	}
	m.cancel = nil

	if err != nil {
		m.log.Warn("Instance build failed", slog.String("network", params.Network.String()), "err", err)
		m.publishLocked(State{Status: StatusError, Err: err, Step: m.state.Step, Generation: gen})
		return
	}

	m.publishLocked(State{Status: StatusReady, Instance: instance, Step: m.state.Step, Generation: gen})
}

func (m *Manager) step(gen uint64, step fhevm.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.state.Status != StatusLoading {
		return
	}
	s := m.state
	s.Step = step
	m.publishLocked(s)
}

func (m *Manager) publishLocked(s State) {
	m.state = s
	m.metrics.SetLifecycleStatus(string(s.Status), allStatuses)

	for _, ch := range m.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
