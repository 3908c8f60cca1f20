// Package config handles loading and parsing tether gateway configuration.
//
// # Overview
//
// This package reads tether's TOML configuration to discover the local bind
// address, the upstream origin, cache locations, and the app-shell manifest.
// Every field can also be set through a TETHER_* environment variable, which
// wins over the file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/tether/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. Apply TETHER_* environment variables over whatever was loaded
//
// Missing config files are NOT an error. The one hard requirement is the
// upstream origin: without it the gateway has nothing to front.
//
// # Default Values
//
//   - Config file: ~/.config/tether/config.toml
//   - Listen address: 127.0.0.1:7410
//   - Cache directory: ~/.local/share/tether/cache
//   - Poll interval: 10 seconds
//   - Assets prefix: /assets/
//   - API prefix: /api/
//   - Entry document: /index.html
//   - Probe URL: derived from the upstream origin
//
// # TOML Format
//
// Example config.toml:
//
//	listen = "127.0.0.1:7410"
//	upstream = "https://dashboard.example.net"
//	probe_url = "https://dashboard.example.net/healthz"
//	poll_seconds = 10
//
//	[shell]
//	required = ["/index.html", "/assets/app.3f9a21bc.js"]
//	optional = ["/assets/logo.png"]
//
// Tilde expansion is performed on the config path and cache_dir.
//
// # Design Philosophy
//
// The package follows the principle of sensible defaults: point it at an
// upstream origin and everything else works out of the box. It is read-only
// and stateless, loading once at startup into an immutable Config struct.
package config
