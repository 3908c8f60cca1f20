// Package app provides the orchestration layer for the tether gateway.
//
// # Overview
//
// This package wires together configuration, connectivity monitoring, the
// retry queue, and the app-shell cache into the complete gateway. It serves
// as the composition root where all dependencies are initialized and
// connected.
//
// # Architecture
//
// Run follows a simple initialization pattern:
//
//  1. Load gateway configuration from ~/.config/tether/config.toml
//  2. Create the reachability prober against the upstream origin
//  3. Start the connectivity monitor (poll strategy unless the host
//     provides a signal)
//  4. Start the retry queue, subscribed to the monitor
//  5. Open the app-shell cache and install the configured manifest
//  6. Serve HTTP until the context cancels, then shut down gracefully
//
// # Request Routing
//
//   - GET /-/status          gateway health: link state, strategy, queue
//     depth, active shell version
//   - <api prefix>/...       reads proxy straight upstream; every other
//     method runs through the retry queue
//   - everything else        the shell cache handler (network-first
//     navigations, cache-first assets)
//
// # Mutation Queueing
//
// A mutation whose upstream round trip fails for connectivity reasons, or
// that arrives while the link is down, is answered 202 Accepted with a JSON
// body carrying the queue entry id:
//
//	{"queued": true, "id": "..."}
//
// The captured request replays in arrival order when the link returns. One
// Idempotency-Key covers every attempt of the same mutation, so the upstream
// can deduplicate replays. Application-level failures are never queued; the
// upstream's verdict goes back to the caller unchanged.
//
// # Error Handling
//
// Fatal errors (returned from Run):
//   - Configuration missing its upstream origin or unparseable
//   - Prober or cache initialization failure
//   - The listener failing to bind
//
// Recoverable errors (logged, serving continues):
//   - Shell manifest install failures (the previous version keeps serving)
//   - Individual probe, revalidation, and replay failures
package app
