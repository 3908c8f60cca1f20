package shellcache

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Responses larger than this pass through uncached; the app shell is small.
const maxCachedBody = 8 << 20

// Manifest lists the app-shell resources installed ahead of need. A required
// resource that cannot be retrieved fails the whole install; optional ones
// are best effort.
type Manifest struct {
	Required []string
	Optional []string
}

// Options configure a Manager.
type Options struct {
	// Upstream is the origin every same-origin request resolves against.
	Upstream string
	// Dir holds the versioned store files.
	Dir string
	Policy Policy
	// Client overrides the upstream HTTP client. Used by tests.
	Client *http.Client
	// EntryPath is the application entry document served for navigations.
	// Empty selects /index.html.
	EntryPath string
}

// Manager makes every same-origin read request resolve from a local
// versioned cache when appropriate and keeps that cache coherent across
// deploys. It has no API of its own: it intercepts the standard request path
// as an http.Handler.
type Manager struct {
	upstream  *url.URL
	client    *http.Client
	policy    Policy
	dir       string
	entryPath string

	mu     sync.RWMutex
	active *Store
}

// New opens the latest installed cache version, if any, and returns the
// manager. With no installed version every request is served network-only
// until Install succeeds.
func New(opts Options) (*Manager, error) {
	target := strings.TrimSpace(opts.Upstream)
	if target == "" {
		return nil, fmt.Errorf("upstream origin is required")
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", opts.Upstream, err)
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""

	m := &Manager{
		upstream:  u,
		client:    opts.Client,
		policy:    opts.Policy,
		dir:       opts.Dir,
		entryPath: opts.EntryPath,
	}
	if m.client == nil {
		m.client = &http.Client{}
	}
	if m.entryPath == "" {
		m.entryPath = "/index.html"
	}

	versions, err := ListVersions(opts.Dir)
	if err != nil {
		return nil, err
	}
	if len(versions) > 0 {
		latest := versions[len(versions)-1]
		st, err := OpenStore(opts.Dir, latest)
		if err != nil {
			return nil, err
		}
		m.active = st
	}
	return m, nil
}

// Install pre-populates a fresh cache version and activates it. The previous
// version stays active when any required resource fails.
func (m *Manager) Install(ctx context.Context, manifest Manifest) error {
	versions, err := ListVersions(m.dir)
	if err != nil {
		return err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	st, err := OpenStore(m.dir, next)
	if err != nil {
		return err
	}
	for _, p := range manifest.Required {
		if err := m.prefetch(ctx, st, p); err != nil {
			_ = st.Remove()
			return fmt.Errorf("install required resource %s: %w", p, err)
		}
	}
	for _, p := range manifest.Optional {
		if err := m.prefetch(ctx, st, p); err != nil {
			log.Printf("shellcache: optional resource %s skipped: %v", p, err)
		}
	}
	m.activate(st)
	log.Printf("shellcache: version %d active", next)
	return nil
}

// activate swaps the active store so every in-flight request sees the new
// version immediately, then retires all others.
func (m *Manager) activate(st *Store) {
	m.mu.Lock()
	old := m.active
	m.active = st
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	versions, err := ListVersions(m.dir)
	if err != nil {
		log.Printf("shellcache: list versions: %v", err)
		return
	}
	for _, v := range versions {
		if v == st.version {
			continue
		}
		if err := os.Remove(storePath(m.dir, v)); err != nil {
			log.Printf("shellcache: retire version %d: %v", v, err)
		}
	}
}

// ActiveVersion returns the active store version, or 0 when none is
// installed.
func (m *Manager) ActiveVersion() int {
	if st := m.store(); st != nil {
		return st.Version()
	}
	return 0
}

// Close releases the active store.
func (m *Manager) Close() {
	m.mu.Lock()
	st := m.active
	m.active = nil
	m.mu.Unlock()
	if st != nil {
		_ = st.Close()
	}
}

func (m *Manager) store() *Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || !m.sameOrigin(r) {
		m.passThrough(w, r)
		return
	}
	if m.isNavigation(r) {
		m.serveNavigation(w, r)
		return
	}
	m.serveAsset(w, r)
}

func (m *Manager) sameOrigin(r *http.Request) bool {
	return r.URL.Host == "" || r.URL.Host == m.upstream.Host
}

// isNavigation reports whether the request loads the application's entry
// document. App routes are client-side, so any document request maps to the
// single entry document.
func (m *Manager) isNavigation(r *http.Request) bool {
	if r.URL.Path == "/" || r.URL.Path == m.entryPath {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// serveNavigation is network-first: a deploy must be picked up as soon as
// the link allows, with the cached entry document as the offline fallback.
// With nothing ever cached the upstream failure surfaces as a bad gateway;
// there is no further fallback.
func (m *Manager) serveNavigation(w http.ResponseWriter, r *http.Request) {
	entry, err := m.fetch(r.Context(), m.entryPath)
	if err == nil {
		if cacheable(entry.Status) {
			if st := m.store(); st != nil {
				entry.Path = m.entryPath
				if perr := st.Put(r.Context(), entry); perr != nil {
					log.Printf("shellcache: refresh entry document: %v", perr)
				}
			}
		}
		writeEntry(w, entry)
		return
	}

	if st := m.store(); st != nil {
		cached, cerr := st.Get(r.Context(), m.entryPath)
		if cerr != nil {
			log.Printf("shellcache: read entry document: %v", cerr)
		}
		if cached != nil {
			writeEntry(w, cached)
			return
		}
	}
	http.Error(w, "upstream unreachable and no cached shell", http.StatusBadGateway)
}

func (m *Manager) serveAsset(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	class := m.policy.Classify(key)
	st := m.store()

	var cached *Entry
	if st != nil {
		var err error
		cached, err = st.Get(r.Context(), key)
		if err != nil {
			log.Printf("shellcache: read %s: %v", key, err)
			cached = nil
		}
	}

	if cached != nil {
		if class.Immutable {
			// Correctness rests entirely on the naming guarantee; an
			// immutable entry is never revalidated.
			writeEntry(w, cached)
			return
		}
		if !m.policy.IsStale(cached.Header, time.Now()) {
			writeEntry(w, cached)
			go m.revalidate(key, r.URL.RequestURI(), class)
			return
		}
		// Stale: the network answers first; the stale copy only covers an
		// outright failure.
		entry, err := m.fetchAndStore(r.Context(), st, key, r.URL.RequestURI(), class)
		if err != nil {
			writeEntry(w, cached)
			return
		}
		writeEntry(w, entry)
		return
	}

	entry, err := m.fetchAndStore(r.Context(), st, key, r.URL.RequestURI(), class)
	if err != nil {
		unavailable(w)
		return
	}
	writeEntry(w, entry)
}

// fetch retrieves pathAndQuery from the upstream origin as a would-be cache
// entry stamped with the capture timestamp.
func (m *Manager) fetch(ctx context.Context, pathAndQuery string) (*Entry, error) {
	ref, err := url.Parse(pathAndQuery)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", pathAndQuery, err)
	}
	target := m.upstream.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pathAndQuery, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pathAndQuery, err)
	}
	header := resp.Header.Clone()
	header.Set(CapturedHeader, time.Now().UTC().Format(http.TimeFormat))
	return &Entry{
		Path:   ref.Path,
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}

// fetchAndStore retrieves the asset and caches it unless the response is
// partial content or an error status. The response is returned either way.
func (m *Manager) fetchAndStore(ctx context.Context, st *Store, key, pathAndQuery string, class Class) (*Entry, error) {
	entry, err := m.fetch(ctx, pathAndQuery)
	if err != nil {
		return nil, err
	}
	entry.Path = key
	entry.Immutable = class.Immutable
	if st != nil && cacheable(entry.Status) {
		if err := st.Put(ctx, entry); err != nil {
			log.Printf("shellcache: store %s: %v", key, err)
		}
	}
	return entry, nil
}

// cacheable excludes partial-content responses regardless of classification,
// and error statuses.
func cacheable(status int) bool {
	return status < 400 && status != http.StatusPartialContent
}

func (m *Manager) revalidate(key, pathAndQuery string, class Class) {
	st := m.store()
	if st == nil {
		return
	}
	if _, err := m.fetchAndStore(context.Background(), st, key, pathAndQuery, class); err != nil {
		log.Printf("shellcache: revalidate %s: %v", key, err)
	}
}

func (m *Manager) prefetch(ctx context.Context, st *Store, p string) error {
	entry, err := m.fetch(ctx, p)
	if err != nil {
		return err
	}
	if !cacheable(entry.Status) {
		return fmt.Errorf("fetch %s: status %d not cacheable", p, entry.Status)
	}
	entry.Immutable = m.policy.Classify(entry.Path).Immutable
	return st.Put(ctx, entry)
}

// passThrough proxies cross-origin and non-read requests unmodified; nothing
// here is ever cached.
func (m *Manager) passThrough(w http.ResponseWriter, r *http.Request) {
	target := m.upstream.ResolveReference(r.URL)
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()
	resp, err := m.client.Do(req)
	if err != nil {
		unavailable(w)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func writeEntry(w http.ResponseWriter, e *Entry) {
	copyHeader(w.Header(), e.Header)
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

// unavailable is the synthetic response used when neither the network nor
// the cache can answer, so the caller never hangs.
func unavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, "offline and not cached\n")
}
