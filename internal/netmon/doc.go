// Package netmon unifies inconsistent or absent host connectivity signals
// into one trustworthy online/offline stream.
//
// # Overview
//
// The dashboard runs inside three different shells, each with a different
// notion of "am I online": a browser tab with transition events and a
// host-reported flag, an embedded mobile shell with an optional native
// network-status capability, and an embedded desktop shell with no signal at
// all. The Monitor hides that variance behind a single contract:
//
//	m := netmon.New(netmon.Options{Prober: prober})
//	unsubscribe := m.Start(func(online bool) { ... })
//	defer unsubscribe()
//
// Start invokes the callback immediately with the current state and again on
// every subsequent change.
//
// # Strategy Selection
//
// One of three strategies is chosen once at construction:
//
//   - native: the mobile shell's capability, when Available; a failed Watch
//     falls back to signal (or poll).
//   - signal: the host transition feed, seeded from the host-reported flag.
//   - poll: seed from the host flag, then probe a well-known endpoint every
//     10 seconds, notifying only when the result differs from the held state.
//
// Selection failures degrade toward polling rather than erroring. Probe
// failures read as offline but never halt the polling loop.
//
// # Ownership
//
// A single goroutine owns the connectivity state; every mutation happens on
// that loop, in the order the strategy delivered transitions. Readers see the
// state through an atomic mirror, so a read racing a flip observes either the
// old or the new value, never a torn one.
package netmon
