// Package config loads the server's configuration (§6.5): typed defaults,
// overridden by an optional JSON file loaded the way jax_core_config.go
// loads JaxCoreConfig, then by environment variables. Defaults are taken
// silently; an environment value that fails to parse is logged and the
// previous value is kept.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/roboplc/metrics-exporter-scope/internal/obslog"
)

// Config holds every option in the §6.5 table.
type Config struct {
	BindAddr            string        `json:"bindAddr"`
	MetadataInterval    time.Duration `json:"metadataIntervalMs"`
	MinSamplingInterval time.Duration `json:"minSamplingIntervalNs"`
	HandshakeTimeout    time.Duration `json:"handshakeTimeoutMs"`
	// MaxConsecutiveDrops is the configurable consecutive-drop threshold
	// from §4.4; 0 means unbounded (the default).
	MaxConsecutiveDrops int `json:"maxConsecutiveDrops"`
	// FallbackRecorder selects the built-in fallback_recorder (§6.5)
	// implementation for non-sigil metrics: "none" drops them, "log"
	// forwards describe/register calls to the structured logger. A
	// fallback_recorder is a Go interface value, so a host embedding this
	// module programmatically (via libs/scope.NewFacade) can always supply
	// a richer implementation of its own; this option only selects among
	// the implementations this binary ships.
	FallbackRecorder string `json:"fallbackRecorder"`
}

// FallbackRecorderNone and FallbackRecorderLog are the only recognized
// values for FallbackRecorder.
const (
	FallbackRecorderNone = "none"
	FallbackRecorderLog  = "log"
)

// Default returns the §6.5 defaults.
func Default() Config {
	return Config{
		BindAddr:            "0.0.0.0:5001",
		MetadataInterval:    5 * time.Second,
		MinSamplingInterval: 1000 * time.Nanosecond,
		HandshakeTimeout:    10 * time.Second,
		MaxConsecutiveDrops: 0,
		FallbackRecorder:    FallbackRecorderNone,
	}
}

// Load builds a Config starting from Default(), applying an optional JSON
// file at path (if non-empty), then environment variables (which always
// take precedence, matching cmd/trader/main.go's documented behavior).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	type fileShape struct {
		BindAddr              string `json:"bindAddr"`
		MetadataIntervalMs    int64  `json:"metadataIntervalMs"`
		MinSamplingIntervalNs int64  `json:"minSamplingIntervalNs"`
		HandshakeTimeoutMs    int64  `json:"handshakeTimeoutMs"`
		MaxConsecutiveDrops   int    `json:"maxConsecutiveDrops"`
		FallbackRecorder      string `json:"fallbackRecorder"`
	}

	cfg := Default()
	var parsed fileShape
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if parsed.BindAddr != "" {
		cfg.BindAddr = parsed.BindAddr
	}
	if parsed.MetadataIntervalMs > 0 {
		cfg.MetadataInterval = time.Duration(parsed.MetadataIntervalMs) * time.Millisecond
	}
	if parsed.MinSamplingIntervalNs > 0 {
		cfg.MinSamplingInterval = time.Duration(parsed.MinSamplingIntervalNs)
	}
	if parsed.HandshakeTimeoutMs > 0 {
		cfg.HandshakeTimeout = time.Duration(parsed.HandshakeTimeoutMs) * time.Millisecond
	}
	if parsed.MaxConsecutiveDrops > 0 {
		cfg.MaxConsecutiveDrops = parsed.MaxConsecutiveDrops
	}
	if parsed.FallbackRecorder != "" {
		cfg.FallbackRecorder = parsed.FallbackRecorder
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SCOPE_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}

	if v := os.Getenv("SCOPE_METADATA_INTERVAL_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.MetadataInterval = time.Duration(ms) * time.Millisecond
		} else {
			obslog.Error("config_invalid_env", map[string]any{"option": "SCOPE_METADATA_INTERVAL_MS", "value": v})
		}
	}

	if v := os.Getenv("SCOPE_MIN_SAMPLING_INTERVAL_NS"); v != "" {
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil && ns > 0 {
			cfg.MinSamplingInterval = time.Duration(ns)
		} else {
			obslog.Error("config_invalid_env", map[string]any{"option": "SCOPE_MIN_SAMPLING_INTERVAL_NS", "value": v})
		}
	}

	if v := os.Getenv("SCOPE_HANDSHAKE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.HandshakeTimeout = time.Duration(ms) * time.Millisecond
		} else {
			obslog.Error("config_invalid_env", map[string]any{"option": "SCOPE_HANDSHAKE_TIMEOUT_MS", "value": v})
		}
	}

	if v := os.Getenv("SCOPE_MAX_CONSECUTIVE_DROPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxConsecutiveDrops = n
		} else {
			obslog.Error("config_invalid_env", map[string]any{"option": "SCOPE_MAX_CONSECUTIVE_DROPS", "value": v})
		}
	}

	if v := os.Getenv("SCOPE_FALLBACK_RECORDER"); v != "" {
		cfg.FallbackRecorder = v
	}
}

func validate(cfg Config) error {
	if cfg.BindAddr == "" {
		return fmt.Errorf("config: bind_addr must not be empty")
	}
	if cfg.MinSamplingInterval <= 0 {
		return fmt.Errorf("config: min_sampling_interval must be positive, got %v", cfg.MinSamplingInterval)
	}
	if cfg.MetadataInterval <= 0 {
		return fmt.Errorf("config: metadata_interval must be positive, got %v", cfg.MetadataInterval)
	}
	if cfg.HandshakeTimeout <= 0 {
		return fmt.Errorf("config: handshake_timeout must be positive, got %v", cfg.HandshakeTimeout)
	}
	if cfg.MaxConsecutiveDrops < 0 {
		return fmt.Errorf("config: max_consecutive_drops must be >= 0, got %d", cfg.MaxConsecutiveDrops)
	}
	if cfg.FallbackRecorder != FallbackRecorderNone && cfg.FallbackRecorder != FallbackRecorderLog {
		return fmt.Errorf("config: fallback_recorder must be %q or %q, got %q", FallbackRecorderNone, FallbackRecorderLog, cfg.FallbackRecorder)
	}
	return nil
}
