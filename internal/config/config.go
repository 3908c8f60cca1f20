package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything the tether gateway needs to run. Values resolve
// in order: defaults, then the TOML file, then environment overrides.
type Config struct {
	// Listen is the local address the gateway binds.
	Listen string `toml:"listen" env:"TETHER_LISTEN"`
	// Upstream is the remote origin the dashboard talks to.
	Upstream string `toml:"upstream" env:"TETHER_UPSTREAM"`
	// ProbeURL is the reachability endpoint. Empty derives it from Upstream.
	ProbeURL string `toml:"probe_url" env:"TETHER_PROBE_URL"`
	// PollSeconds is the probe interval when no host signal exists.
	PollSeconds int `toml:"poll_seconds" env:"TETHER_POLL_SECONDS"`
	// CacheDir holds the versioned app-shell stores.
	CacheDir string `toml:"cache_dir" env:"TETHER_CACHE_DIR"`
	// AssetsPrefix is the directory under which hashed filenames are trusted
	// as immutable.
	AssetsPrefix string `toml:"assets_prefix" env:"TETHER_ASSETS_PREFIX"`
	// APIPrefix routes data requests; mutations under it are queued while
	// the link is down.
	APIPrefix string `toml:"api_prefix" env:"TETHER_API_PREFIX"`
	// EntryPath is the application entry document.
	EntryPath string `toml:"entry_path" env:"TETHER_ENTRY_PATH"`
	// MaxAttempts caps replay attempts per queued mutation.
	MaxAttempts int `toml:"max_attempts" env:"TETHER_MAX_ATTEMPTS"`

	Shell Shell `toml:"shell"`
}

// Shell lists the app-shell resources installed ahead of need.
type Shell struct {
	Required []string `toml:"required" env:"TETHER_SHELL_REQUIRED" envSeparator:","`
	Optional []string `toml:"optional" env:"TETHER_SHELL_OPTIONAL" envSeparator:","`
}

const (
	defaultConfigPath  = "~/.config/tether/config.toml"
	defaultCacheDir    = "~/.local/share/tether/cache"
	defaultListen      = "127.0.0.1:7410"
	defaultPollSeconds = 10
)

// Load locates and parses the gateway config, falling back to defaults when
// the file is missing, then applies environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Listen:       defaultListen,
		PollSeconds:  defaultPollSeconds,
		CacheDir:     defaultCacheDir,
		AssetsPrefix: "/assets/",
		APIPrefix:    "/api/",
		EntryPath:    "/index.html",
	}

	raw, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// A file-less setup runs on defaults plus env overrides.
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if strings.TrimSpace(cfg.Upstream) == "" {
		return Config{}, fmt.Errorf("upstream origin is required (set upstream in %s or TETHER_UPSTREAM)", resolved)
	}
	if strings.TrimSpace(cfg.ProbeURL) == "" {
		cfg.ProbeURL = cfg.Upstream
	}
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = defaultPollSeconds
	}
	cfg.CacheDir = mustExpand(cfg.CacheDir)

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
