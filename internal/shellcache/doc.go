// Package shellcache serves the application shell from a local versioned
// cache and keeps that cache coherent across deploys.
//
// # Overview
//
// The Manager sits on the standard request path as an http.Handler. Requests
// to a different origin and non-GET requests pass through uninterrupted.
// Navigations are network-first with the cached entry document as offline
// fallback. Static assets are classified by Policy:
//
//   - immutable (hashed filename under the assets directory): served from
//     cache when present and never revalidated.
//   - mutable and fresh: served from cache with a background revalidation.
//   - mutable and stale: the network answers first; the stale copy only
//     covers an outright network failure.
//
// A partial-content response is returned to the caller but never stored.
// When neither the network nor the cache can answer, a synthetic 503 is
// returned so the caller never hangs.
//
// # Versioning
//
// Each deploy installs into a fresh SQLite store file named with a
// monotonically increasing version suffix. Install pre-populates the
// required resource set, failing entirely when any required resource cannot
// be retrieved, plus a best-effort optional set. Activation swaps the active
// store atomically, so requests already in flight move to the new version
// immediately, and then deletes every other version.
//
// Within a store, an immutable entry is inserted once and never overwritten;
// mutable entries are replaced on revalidation. The version-per-file layout
// keeps different versions from ever colliding.
package shellcache
