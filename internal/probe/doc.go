// Package probe implements the active reachability check used where the host
// provides no connectivity signal of its own.
//
// A probe is a single, minimal, cache-busting GET against a fixed small
// endpoint, bounded by a 4-second timeout. The result is a heuristic: true
// means the request left the device, nothing more.
package probe
