package netmon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Options select the connectivity source for a Monitor. All fields are
// optional; with nothing provided the monitor degrades to probe polling with
// a nil prober, which reads as permanently offline.
type Options struct {
	// Signals is the host transition feed, when the shell has one.
	Signals SignalSource
	// Native is the embedded-mobile capability, consulted first when
	// available.
	Native NativeStatus
	// Prober drives the poll strategy and one-shot checks.
	Prober Prober
	// PollEvery overrides the 10s poll interval. Used by tests.
	PollEvery time.Duration
	// Seed reports the host connectivity flag used to seed the poll
	// strategy before the first probe completes.
	Seed func() bool
}

// Monitor unifies the host's connectivity signals into one authoritative
// online/offline stream. Exactly one Monitor should exist per process; it is
// the only writer of the connectivity state.
type Monitor struct {
	strat  strategy
	prober Prober

	online atomic.Bool
	ready  chan struct{}
	events chan bool

	mu   sync.Mutex
	subs []*subscriber

	cancel context.CancelFunc
	done   chan struct{}
}

type subscriber struct {
	fn func(online bool)
}

// New constructs the monitor, selects a strategy once, and blocks until the
// strategy has delivered the initial state.
func New(opts Options) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		strat:  selectStrategy(opts),
		prober: opts.Prober,
		ready:  make(chan struct{}),
		events: make(chan bool, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.loop(ctx)
	go m.strat.run(ctx, m.deliver(ctx))
	<-m.ready
	return m
}

func (m *Monitor) deliver(ctx context.Context) func(bool) {
	return func(online bool) {
		select {
		case m.events <- online:
		case <-ctx.Done():
		}
	}
}

// loop is the single owner of the connectivity state. Transitions are applied
// and fanned out here, in the order the strategy delivered them.
func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case online := <-m.events:
			if first {
				m.online.Store(online)
				first = false
				close(m.ready)
				continue
			}
			if online == m.online.Load() {
				continue
			}
			m.online.Store(online)
			m.notify(online)
		}
	}
}

func (m *Monitor) notify(online bool) {
	m.mu.Lock()
	subs := make([]*subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, s := range subs {
		s.fn(online)
	}
}

// Start registers onChange, invokes it immediately with the current state,
// and returns an unsubscribe function.
func (m *Monitor) Start(onChange func(online bool)) func() {
	s := &subscriber{fn: onChange}
	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()

	onChange(m.online.Load())

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, cur := range m.subs {
			if cur == s {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Current returns the process-wide connectivity state.
func (m *Monitor) Current() bool {
	return m.online.Load()
}

// CheckConnectivity performs a one-shot active check. Without a prober it
// falls back to the held state.
func (m *Monitor) CheckConnectivity(ctx context.Context) bool {
	if m.prober != nil {
		return m.prober.Probe(ctx)
	}
	return m.Current()
}

// StrategyName reports which signal source was selected at construction.
func (m *Monitor) StrategyName() string {
	return m.strat.name()
}

// Close releases the strategy's timers and subscriptions and stops
// notification delivery.
func (m *Monitor) Close() {
	m.cancel()
	<-m.done
}
