package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/evtops/tether/internal/config"
	"github.com/evtops/tether/internal/netmon"
	"github.com/evtops/tether/internal/probe"
	"github.com/evtops/tether/internal/retry"
	"github.com/evtops/tether/internal/shellcache"
)

const shutdownGrace = 5 * time.Second

// Options configure the tether gateway.
type Options struct {
	ConfigPath  string
	Listen      string // empty uses the configured bind address
	PollSeconds int    // zero uses the configured interval
}

// Run boots the gateway and serves until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.PollSeconds > 0 {
		cfg.PollSeconds = opts.PollSeconds
	}

	prober, err := probe.New(cfg.ProbeURL)
	if err != nil {
		return fmt.Errorf("init prober: %w", err)
	}

	monitor := netmon.New(netmon.Options{
		Prober:    prober,
		PollEvery: time.Duration(cfg.PollSeconds) * time.Second,
	})
	defer monitor.Close()

	queue := retry.New(retry.Options{
		States:      monitor,
		MaxAttempts: cfg.MaxAttempts,
	})
	defer queue.Close()

	cache, err := shellcache.New(shellcache.Options{
		Upstream:  cfg.Upstream,
		Dir:       cfg.CacheDir,
		EntryPath: cfg.EntryPath,
		Policy:    shellcache.Policy{AssetsPrefix: cfg.AssetsPrefix},
	})
	if err != nil {
		return fmt.Errorf("init shell cache: %w", err)
	}
	defer cache.Close()

	// A failed install is survivable: the previous version keeps serving.
	if len(cfg.Shell.Required) > 0 || len(cfg.Shell.Optional) > 0 {
		manifest := shellcache.Manifest{
			Required: cfg.Shell.Required,
			Optional: cfg.Shell.Optional,
		}
		if err := cache.Install(ctx, manifest); err != nil {
			log.Printf("shell install failed, serving version %d: %v", cache.ActiveVersion(), err)
		}
	}

	api, err := newAPIHandler(cfg.Upstream, queue)
	if err != nil {
		return fmt.Errorf("init api handler: %w", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/-/status", statusHandler(monitor, queue, cache)).Methods(http.MethodGet)
	router.PathPrefix(cfg.APIPrefix).Handler(api)
	router.PathPrefix("/").Handler(cache)

	server := &http.Server{Addr: cfg.Listen, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("tether: listening on %s, fronting %s", cfg.Listen, cfg.Upstream)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
