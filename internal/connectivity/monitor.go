package connectivity

import (
	"context"
	"sync"
	"time"

	"tallybook/internal/logging"
	"tallybook/internal/metrics"
	"tallybook/internal/models"

	"github.com/rs/zerolog"
)

// Signal is the platform reachability source.
type Signal interface {
	Online(ctx context.Context) bool
}

// Monitor tracks reachability and fires callbacks once per transition.
type Monitor struct {
	signal Signal
	logger *zerolog.Logger

	mu        sync.RWMutex
	state     models.ConnectivityState
	onOnline  []func()
	onOffline []func()
}

// NewMonitor reads signal once to seed the state. No callbacks fire during
// construction. A nil signal leaves the monitor permanently online.
func NewMonitor(ctx context.Context, signal Signal, logger *zerolog.Logger) *Monitor {
	m := &Monitor{
		signal: signal,
		logger: logging.Component(logger, "connectivity"),
		state: models.ConnectivityState{
			Online:    true,
			ChangedAt: time.Now().UTC(),
		},
	}

	if signal != nil {
		m.state.Supported = true
		m.state.Online = signal.Online(ctx)
	}

	metrics.SetOnline(m.state.Online)
	m.logger.Info().
		Bool("online", m.state.Online).
		Bool("supported", m.state.Supported).
		Msg("Connectivity monitor initialized")

	return m
}

// OnBecameOnline registers fn for offline to online transitions.
func (m *Monitor) OnBecameOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnBecameOffline registers fn for online to offline transitions.
func (m *Monitor) OnBecameOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Online
}

// State returns a copy of the current state.
func (m *Monitor) State() models.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Observe relays a platform observation. It returns true when the state changed.
// Callbacks run on the caller's goroutine after the lock is released.
func (m *Monitor) Observe(online bool) bool {
	m.mu.Lock()
	if !m.state.Supported || m.state.Online == online {
		m.mu.Unlock()
		return false
	}

	m.state.Online = online
	m.state.ChangedAt = time.Now().UTC()

	var handlers []func()
	if online {
		handlers = append(handlers, m.onOnline...)
	} else {
		handlers = append(handlers, m.onOffline...)
	}
	m.mu.Unlock()

	metrics.SetOnline(online)
	if online {
		m.logger.Info().Msg("Became online")
	} else {
		m.logger.Warn().Msg("Became offline")
	}

	for _, fn := range handlers {
		fn()
	}
	return true
}

// Run polls the signal every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m.signal == nil {
		return
	}
	if interval <= 0 {
		interval = models.DefaultProbeInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Observe(m.signal.Online(ctx))
		}
	}
}
