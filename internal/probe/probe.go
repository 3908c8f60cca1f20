package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 4 * time.Second
	defaultPath    = "/healthz"
	userAgent      = "tether/0.1"
)

// Client issues minimal reachability probes against a single well-known
// endpoint. It answers one question only: can a request leave this device at
// all. It says nothing about whether any particular downstream service is
// healthy.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	timeout  time.Duration
}

// New builds a Client for the given target. A bare host:port gets an http
// scheme and the default probe path.
func New(target string) (*Client, error) {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return nil, fmt.Errorf("probe target is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse probe target %q: %w", target, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}
	return &Client{
		endpoint: u,
		http:     &http.Client{},
		timeout:  defaultTimeout,
	}, nil
}

// Probe reports whether the probe request left the device. Any HTTP response
// counts as reachable, including error statuses and opaque bodies; only a
// timeout or transport failure counts against.
func (c *Client) Probe(ctx context.Context) bool {
	if c == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Cache-busting query param so intermediaries cannot answer for the
	// network.
	u := *c.endpoint
	q := u.Query()
	q.Set("ts", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	return true
}
