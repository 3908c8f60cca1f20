package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/evtops/tether/internal/netmon"
	"github.com/evtops/tether/internal/retry"
	"github.com/evtops/tether/internal/shellcache"
)

// Mutation bodies larger than this are rejected rather than queued.
const maxMutationBody = 4 << 20

// apiHandler fronts the upstream data API. Reads go straight to the network;
// mutations run through the retry queue so a dead link parks them instead of
// losing them.
type apiHandler struct {
	upstream *url.URL
	client   *http.Client
	queue    *retry.Queue
}

func newAPIHandler(upstream string, queue *retry.Queue) (*apiHandler, error) {
	target := strings.TrimSpace(upstream)
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", upstream, err)
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return &apiHandler{upstream: u, client: &http.Client{}, queue: queue}, nil
}

// forwardResult is what a completed upstream round trip hands back through
// the queue.
type forwardResult struct {
	Status int
	Header http.Header
	Body   []byte
}

func (h *apiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.proxy(w, r)
	default:
		h.mutate(w, r)
	}
}

// proxy relays a read request as-is. Data freshness is the dashboard's
// business; nothing under the API prefix is ever cached here.
func (h *apiHandler) proxy(w http.ResponseWriter, r *http.Request) {
	target := h.upstream.ResolveReference(r.URL)
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), nil)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()
	resp, err := h.client.Do(req)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusServiceUnavailable)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// mutate forwards a write through the retry queue. The body and headers are
// captured up front so the operation can replay long after this request has
// returned. One idempotency key covers every attempt of the same mutation.
func (h *apiHandler) mutate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMutationBody+1))
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxMutationBody {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	method := r.Method
	target := h.upstream.ResolveReference(r.URL).String()
	header := r.Header.Clone()
	header.Set("Idempotency-Key", uuid.NewString())

	op := func(ctx context.Context) (any, error) {
		return h.forward(ctx, method, target, header, body)
	}

	outcome, err := h.queue.Execute(r.Context(), op)
	if err != nil {
		// The operation reached the upstream and failed there, or the
		// queue is shut down. Either way the caller gets the truth.
		log.Printf("api: %s %s: %v", method, r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if outcome.Queued {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"queued": true,
			"id":     outcome.ID,
		})
		return
	}

	result, ok := outcome.Result.(*forwardResult)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	copyHeader(w.Header(), result.Header)
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}

// forward performs one upstream round trip. Gateway-style statuses and
// throttling become errors so the queue treats them as connectivity trouble;
// everything else, including application-level 4xx, is a completed result.
func (h *apiHandler) forward(ctx context.Context, method, target string, header http.Header, body []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward %s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("upstream unavailable: status %d", resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("upstream resource-exhausted: status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &forwardResult{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   payload,
	}, nil
}

// statusHandler reports the gateway's own health: link state, the strategy
// watching it, queue depth, and the active shell version.
func statusHandler(monitor *netmon.Monitor, queue *retry.Queue, cache *shellcache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"online":        monitor.Current(),
			"strategy":      monitor.StrategyName(),
			"queued":        queue.Len(),
			"shell_version": cache.ActiveVersion(),
		})
	}
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
