package offline

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/fundiapp/go-fundi-client/core"
)

const defaultProbeInterval = 15 * time.Second

// Probe reports nil when the backend is reachable.
type Probe func(ctx context.Context) error

// Monitor watches connectivity and invokes the registered callbacks on the
// offline-to-online transition. The queue's Flush is the canonical callback.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   core.Logger

	mu        sync.Mutex
	online    bool
	known     bool
	callbacks []func(ctx context.Context)
	cancel    context.CancelFunc
	done      chan struct{}
}

type MonitorOption func(*Monitor)

func WithMonitorLogger(logger core.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func NewMonitor(cfg core.Config, probe Probe, opts ...MonitorOption) (*Monitor, error) {
	if probe == nil {
		return nil, fmt.Errorf("offline: connectivity probe is required")
	}
	interval := defaultProbeInterval
	if cfg.Offline.ProbeIntervalMS > 0 {
		interval = time.Duration(cfg.Offline.ProbeIntervalMS) * time.Millisecond
	}
	m := &Monitor{
		probe:    probe,
		interval: interval,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	m.logger = glog.Ensure(m.logger)
	return m, nil
}

// OnOnline registers a callback fired on every offline-to-online transition.
func (m *Monitor) OnOnline(callback func(ctx context.Context)) {
	if m == nil || callback == nil {
		return
	}
	m.mu.Lock()
	m.callbacks = append(m.callbacks, callback)
	m.mu.Unlock()
}

// Online reports the last observed state; false until the first probe.
func (m *Monitor) Online() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known && m.online
}

// Start begins probing until Stop or ctx cancellation. Starting a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.loop(runCtx, done)
}

func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		m.observe(ctx)
		if err := core.WaitWithContext(ctx, m.interval); err != nil {
			return
		}
	}
}

// Observe runs one probe immediately. Exposed so hosts with a platform
// reachability signal can force a check on a network-change event instead of
// waiting for the next tick.
func (m *Monitor) Observe(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.observe(ctx)
}

func (m *Monitor) observe(ctx context.Context) {
	err := m.probe(ctx)
	online := err == nil

	m.mu.Lock()
	wasKnown := m.known
	wasOnline := m.online
	m.known = true
	m.online = online
	callbacks := make([]func(ctx context.Context), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	if online && (!wasKnown || !wasOnline) {
		m.logger.Info("connectivity restored")
		for _, callback := range callbacks {
			callback(ctx)
		}
		return
	}
	if !online && wasKnown && wasOnline {
		m.logger.Info("connectivity lost", "error", err.Error())
	}
}
