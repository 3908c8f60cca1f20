package shellcache

import (
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultFreshnessWindow is how long a mutable cached asset is served
	// without revalidation.
	DefaultFreshnessWindow = 7 * 24 * time.Hour

	defaultAssetsPrefix = "/assets/"

	// CapturedHeader carries the capture timestamp inside the stored
	// response itself, so an entry copied across devices ages out on real
	// elapsed time instead of resetting.
	CapturedHeader = "X-Tether-Captured-At"
)

// A hashed filename embeds a hex fragment of at least 8 characters, e.g.
// app.3f9a21bc.js. Any content change produces a distinct name.
var hashedFragment = regexp.MustCompile(`(?:^|[._-])[0-9a-f]{8,}(?:[._-]|$)`)

// Policy decides how a cached asset may be served.
type Policy struct {
	// AssetsPrefix is the directory under which hashed names are trusted.
	// Empty selects /assets/.
	AssetsPrefix string
	// Window overrides the freshness window. Zero selects the default.
	Window time.Duration
}

// Class is the result of classifying a request path.
type Class struct {
	Immutable bool
}

// Classify reports whether the path names an immutable asset. Pure and
// deterministic: two calls on the same path always agree.
func (p Policy) Classify(reqPath string) Class {
	prefix := p.AssetsPrefix
	if prefix == "" {
		prefix = defaultAssetsPrefix
	}
	if !strings.HasPrefix(reqPath, prefix) {
		return Class{}
	}
	return Class{Immutable: hashedFragment.MatchString(path.Base(reqPath))}
}

// IsStale reports whether the entry's age has reached the freshness window.
// The capture timestamp is read from the stored response's own header; a
// missing or unparseable timestamp reads as stale. Boundary rule: an entry
// exactly as old as the window is stale.
func (p Policy) IsStale(header http.Header, now time.Time) bool {
	captured, err := http.ParseTime(header.Get(CapturedHeader))
	if err != nil {
		return true
	}
	window := p.Window
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return !captured.After(now.Add(-window))
}
