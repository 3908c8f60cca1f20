package netmon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSignals struct {
	current bool
	subErr  error

	mu sync.Mutex
	cb func(bool)
}

func (f *fakeSignals) Current() bool { return f.current }

func (f *fakeSignals) Subscribe(fn func(bool)) (func(), error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.mu.Lock()
	f.cb = fn
	f.mu.Unlock()
	return func() {}, nil
}

func (f *fakeSignals) fire(t *testing.T, online bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		cb := f.cb
		f.mu.Unlock()
		if cb != nil {
			cb(online)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("signal subscription never registered")
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeNative struct {
	available bool
	current   bool
	watchErr  error

	mu sync.Mutex
	cb func(bool)
}

func (f *fakeNative) Available() bool { return f.available }
func (f *fakeNative) Current() bool   { return f.current }

func (f *fakeNative) Watch(fn func(bool)) (func(), error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.mu.Lock()
	f.cb = fn
	f.mu.Unlock()
	return func() {}, nil
}

type fakeProber struct {
	online atomic.Bool
}

func (p *fakeProber) Probe(ctx context.Context) bool { return p.online.Load() }

func collector() (func(bool), <-chan bool) {
	ch := make(chan bool, 32)
	return func(online bool) { ch <- online }, ch
}

func awaitState(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("state = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state %v", want)
	}
}

func TestStartDeliversInitialOfflineState(t *testing.T) {
	m := New(Options{Signals: &fakeSignals{current: false}})
	defer m.Close()

	onChange, states := collector()
	unsubscribe := m.Start(onChange)
	defer unsubscribe()

	// Host reports offline at start: the very first call must see false.
	awaitState(t, states, false)
}

func TestSignalTransitionsDeliveredInOrder(t *testing.T) {
	src := &fakeSignals{current: true}
	m := New(Options{Signals: src})
	defer m.Close()

	onChange, states := collector()
	unsubscribe := m.Start(onChange)
	defer unsubscribe()

	awaitState(t, states, true)

	src.fire(t, false)
	awaitState(t, states, false)

	src.fire(t, true)
	awaitState(t, states, true)
}

func TestRedundantTransitionsSuppressed(t *testing.T) {
	src := &fakeSignals{current: true}
	m := New(Options{Signals: src})
	defer m.Close()

	onChange, states := collector()
	unsubscribe := m.Start(onChange)
	defer unsubscribe()

	awaitState(t, states, true)

	src.fire(t, true)
	src.fire(t, true)
	src.fire(t, false)

	// The duplicate trues must collapse; the next delivery is the flip.
	awaitState(t, states, false)
}

func TestPollStrategyNotifiesOnlyOnChange(t *testing.T) {
	prober := &fakeProber{}
	m := New(Options{
		Prober:    prober,
		PollEvery: 5 * time.Millisecond,
		Seed:      func() bool { return true },
	})
	defer m.Close()

	onChange, states := collector()
	unsubscribe := m.Start(onChange)
	defer unsubscribe()

	// Seeded online from the host flag.
	awaitState(t, states, true)

	// Prober reads offline: one transition, then silence.
	awaitState(t, states, false)

	prober.online.Store(true)
	awaitState(t, states, true)
}

func TestPollStrategyFailClosedWithoutProber(t *testing.T) {
	m := New(Options{
		PollEvery: 5 * time.Millisecond,
		Seed:      func() bool { return true },
	})
	defer m.Close()

	onChange, states := collector()
	unsubscribe := m.Start(onChange)
	defer unsubscribe()

	awaitState(t, states, true)
	// With no prober the first tick must flip to offline.
	awaitState(t, states, false)
}

func TestNativeUnavailableFallsBackToSignal(t *testing.T) {
	m := New(Options{
		Native:  &fakeNative{available: false},
		Signals: &fakeSignals{current: true},
	})
	defer m.Close()

	if got := m.StrategyName(); got != "signal" {
		t.Fatalf("strategy = %q, want signal", got)
	}
}

func TestNativeWatchFailureDegradesToSignalFeed(t *testing.T) {
	src := &fakeSignals{current: false}
	m := New(Options{
		Native:  &fakeNative{available: true, current: true, watchErr: errors.New("capability revoked")},
		Signals: src,
	})
	defer m.Close()

	onChange, states := collector()
	unsubscribe := m.Start(onChange)
	defer unsubscribe()

	// Initial state came from the native capability before it failed.
	awaitState(t, states, true)

	// Transitions now arrive through the signal feed.
	src.fire(t, false)
	awaitState(t, states, false)
}

func TestCheckConnectivityUsesProber(t *testing.T) {
	prober := &fakeProber{}
	m := New(Options{
		Signals: &fakeSignals{current: true},
		Prober:  prober,
	})
	defer m.Close()

	if m.CheckConnectivity(context.Background()) {
		t.Fatal("expected one-shot check to report offline")
	}
	prober.online.Store(true)
	if !m.CheckConnectivity(context.Background()) {
		t.Fatal("expected one-shot check to report online")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	src := &fakeSignals{current: true}
	m := New(Options{Signals: src})
	defer m.Close()

	onChange, states := collector()
	unsubscribe := m.Start(onChange)
	awaitState(t, states, true)

	unsubscribe()
	src.fire(t, false)

	select {
	case got := <-states:
		t.Fatalf("unexpected delivery after unsubscribe: %v", got)
	case <-time.After(50 * time.Millisecond):
	}
	if m.Current() {
		t.Fatal("monitor state should still track the feed")
	}
}

func TestCloseReleasesMonitor(t *testing.T) {
	m := New(Options{Signals: &fakeSignals{current: true}})
	m.Close()
	// Close must be safe to call on an idle monitor and must return.
	if !m.Current() {
		t.Fatal("state should survive Close")
	}
}
