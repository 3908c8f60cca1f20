// Package retry wraps mutating operations so they survive short connectivity
// gaps.
//
// # Overview
//
// Execute is the single entry point for every mutation the dashboard issues.
// While online it runs the operation directly. A failure is classified
// against a fixed set of connectivity markers: matches are queued for replay,
// everything else propagates unchanged, because a rejected mutation is not a
// network problem and must not be silently swallowed. While offline nothing
// is attempted; the operation goes straight into the queue.
//
// On each transition back to online the queue drains in FIFO order. Queued
// operations are not deduplicated: submitting the same logical mutation twice
// while offline replays it twice. Replay is therefore at-least-once, and the
// forwarding layer attaches an idempotency key so the remote store can
// discard duplicates.
//
// # Ownership
//
// One goroutine owns the queue; enqueues, drains, and introspection all
// travel through its message channel, which keeps concurrent Execute calls
// safe without locks and preserves FIFO replay order.
//
// The queue lives only in process memory. A restart loses unflushed items,
// and replay attempts are capped rather than unbounded; both are deliberate
// departures recorded in DESIGN.md.
package retry
