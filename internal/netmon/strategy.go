package netmon

import (
	"context"
	"log"
	"time"
)

const defaultPollInterval = 10 * time.Second

// SignalSource is a host-provided feed of connectivity transitions plus the
// host-reported current flag. Browser-style shells expose one.
type SignalSource interface {
	// Current returns the host-reported connectivity flag.
	Current() bool
	// Subscribe registers a transition callback and returns an unsubscribe
	// function.
	Subscribe(onChange func(online bool)) (func(), error)
}

// NativeStatus is an optional native network-status capability exposed by
// embedded mobile shells. It may be absent or refuse to watch; both trigger
// fallback.
type NativeStatus interface {
	Available() bool
	Current() bool
	Watch(onChange func(online bool)) (func(), error)
}

// Prober performs an active reachability check. Satisfied by *probe.Client.
type Prober interface {
	Probe(ctx context.Context) bool
}

// strategy is the closed set of connectivity-signal sources. Exactly one is
// selected at Monitor construction; run blocks until ctx is done and must
// deliver the initial state before anything else.
type strategy interface {
	name() string
	run(ctx context.Context, deliver func(online bool))
}

// selectStrategy picks the richest source the host offers, degrading toward
// probe polling rather than failing.
func selectStrategy(opts Options) strategy {
	poll := &pollStrategy{
		prober: opts.Prober,
		every:  opts.PollEvery,
		seed:   opts.Seed,
	}
	if poll.every <= 0 {
		poll.every = defaultPollInterval
	}

	var sig strategy
	if opts.Signals != nil {
		sig = &signalStrategy{src: opts.Signals, fallback: poll}
	}

	if opts.Native != nil && opts.Native.Available() {
		fb := sig
		if fb == nil {
			fb = poll
		}
		return &nativeStrategy{cap: opts.Native, fallback: fb}
	}
	if sig != nil {
		return sig
	}
	return poll
}

// signalStrategy follows the host's online/offline transition feed.
type signalStrategy struct {
	src      SignalSource
	fallback strategy
}

func (s *signalStrategy) name() string { return "signal" }

func (s *signalStrategy) run(ctx context.Context, deliver func(bool)) {
	deliver(s.src.Current())
	unsubscribe, err := s.src.Subscribe(deliver)
	if err != nil {
		log.Printf("netmon: signal subscribe failed, degrading to %s: %v", s.fallback.name(), err)
		s.fallback.run(ctx, deliver)
		return
	}
	defer unsubscribe()
	<-ctx.Done()
}

// nativeStrategy follows an embedded shell's native capability, falling back
// when it cannot be watched.
type nativeStrategy struct {
	cap      NativeStatus
	fallback strategy
}

func (s *nativeStrategy) name() string { return "native" }

func (s *nativeStrategy) run(ctx context.Context, deliver func(bool)) {
	deliver(s.cap.Current())
	stop, err := s.cap.Watch(deliver)
	if err != nil {
		log.Printf("netmon: native watch failed, degrading to %s: %v", s.fallback.name(), err)
		s.fallback.run(ctx, deliver)
		return
	}
	defer stop()
	<-ctx.Done()
}

// pollStrategy seeds from the host-reported flag, then probes on a fixed
// interval. It delivers only when the probed result differs from the state it
// last delivered, so a steady link produces no redundant notifications.
type pollStrategy struct {
	prober Prober
	every  time.Duration
	seed   func() bool
}

func (s *pollStrategy) name() string { return "poll" }

func (s *pollStrategy) run(ctx context.Context, deliver func(bool)) {
	online := true
	if s.seed != nil {
		online = s.seed()
	}
	deliver(online)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A nil prober or a failed probe both read as offline; the
			// loop itself never stops.
			reachable := s.prober != nil && s.prober.Probe(ctx)
			if reachable != online {
				online = reachable
				deliver(online)
			}
		}
	}
}
