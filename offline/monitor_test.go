package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fundiapp/go-fundi-client/core"
)

type togglingProbe struct {
	mu  sync.Mutex
	err error
}

func (p *togglingProbe) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *togglingProbe) probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func newTestMonitor(t *testing.T, probe Probe) *Monitor {
	t.Helper()
	m, err := NewMonitor(core.DefaultConfig(), probe)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m
}

func TestMonitor_UnknownUntilFirstProbe(t *testing.T) {
	m := newTestMonitor(t, (&togglingProbe{}).probe)
	if m.Online() {
		t.Fatalf("expected offline-by-default before first probe")
	}
}

func TestObserve_FirstOnlineProbeFiresCallbacks(t *testing.T) {
	probe := &togglingProbe{}
	m := newTestMonitor(t, probe.probe)

	fired := 0
	m.OnOnline(func(context.Context) { fired++ })

	m.Observe(context.Background())
	if fired != 1 {
		t.Fatalf("expected startup replay trigger on first online probe, got %d", fired)
	}
	if !m.Online() {
		t.Fatalf("expected online state")
	}
}

func TestObserve_FiresOnlyOnOfflineToOnlineTransition(t *testing.T) {
	probe := &togglingProbe{}
	m := newTestMonitor(t, probe.probe)

	fired := 0
	m.OnOnline(func(context.Context) { fired++ })

	m.Observe(context.Background()) // offline -> online
	m.Observe(context.Background()) // online -> online, no fire
	if fired != 1 {
		t.Fatalf("expected single callback while staying online, got %d", fired)
	}

	probe.set(errors.New("no route to host"))
	m.Observe(context.Background()) // online -> offline
	if m.Online() {
		t.Fatalf("expected offline state")
	}
	if fired != 1 {
		t.Fatalf("offline transition must not fire callbacks, got %d", fired)
	}

	probe.set(nil)
	m.Observe(context.Background()) // offline -> online again
	if fired != 2 {
		t.Fatalf("expected second callback on recovery, got %d", fired)
	}
}

func TestMonitor_StartStopLifecycle(t *testing.T) {
	probe := &togglingProbe{}
	m := newTestMonitor(t, probe.probe)

	m.Start(context.Background())
	m.Start(context.Background()) // second start is a no-op

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop() // repeat stop is safe
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return; loop shutdown channel was never released")
	}
}

func TestMonitor_StopWaitsForLoopExitAndAllowsRestart(t *testing.T) {
	probe := &togglingProbe{}
	m := newTestMonitor(t, probe.probe)

	for i := 0; i < 3; i++ {
		m.Start(context.Background())

		stopped := make(chan struct{})
		go func() {
			m.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatalf("Stop hung on cycle %d", i)
		}
	}

	// after the final stop the loop is gone and a fresh start still works
	m.Start(context.Background())
	defer m.Stop()
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		t.Fatalf("expected restarted monitor to own a live shutdown channel")
	}
}

func TestMonitor_CallbackFlushesQueue(t *testing.T) {
	recorder := &replayRecorder{}
	q := newTestQueue(t, recorder)
	if _, err := q.Enqueue(context.Background(), "POST", "/api/reviews", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	probe := &togglingProbe{}
	m := newTestMonitor(t, probe.probe)
	m.OnOnline(func(ctx context.Context) {
		q.Flush(ctx)
	})

	m.Observe(context.Background())

	pending, err := q.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected queue flushed on connectivity event, got %d", len(pending))
	}
	if len(recorder.replayed()) != 1 {
		t.Fatalf("expected one replay, got %d", len(recorder.replayed()))
	}
}
