// Package config loads the triagewatch YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/triagewatch/internal/alert"
	"github.com/ppiankov/triagewatch/internal/classify"
	"github.com/ppiankov/triagewatch/internal/correlate"
	"github.com/ppiankov/triagewatch/internal/engine"
	"github.com/ppiankov/triagewatch/internal/sop"
)

// ClassifierConfig tunes the rule-based classifier.
type ClassifierConfig struct {
	Timelines classify.Timelines `yaml:"timelines"`
}

// MatcherConfig tunes procedure lookup.
type MatcherConfig struct {
	MaxResults int    `yaml:"max_results"`
	Category   string `yaml:"category"`
}

// CacheConfig bounds the merged-decision cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// CorrelationConfig holds badge correlation defaults.
type CorrelationConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

// BatchConfig bounds parallel triage.
type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Config is the full triagewatch configuration.
type Config struct {
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Matcher     MatcherConfig     `yaml:"matcher"`
	Cache       CacheConfig       `yaml:"cache"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Batch       BatchConfig       `yaml:"batch"`
	Logging     LoggingConfig     `yaml:"logging"`
	Alerts      []alert.Config    `yaml:"alerts"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Classifier:  ClassifierConfig{Timelines: classify.DefaultTimelines()},
		Matcher:     MatcherConfig{MaxResults: sop.DefaultMaxResults},
		Cache:       CacheConfig{Size: 1024, TTL: 10 * time.Minute},
		Correlation: CorrelationConfig{WindowSeconds: correlate.DefaultWindow},
		Batch:       BatchConfig{Workers: engine.DefaultWorkers},
		Logging:     LoggingConfig{Level: "info", Format: "console"},
	}
}

// DefaultPath returns ~/.triagewatch/config.yaml, or "" if the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".triagewatch", "config.yaml")
}

// Load reads configuration from path. Empty path falls back to DefaultPath.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 of the raw bytes.
// When no file exists the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), hashOf(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, hashOf(data), nil
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	tl := c.Classifier.Timelines
	for _, f := range []struct {
		name string
		v    int
	}{{"critical", tl.Critical}, {"high", tl.High}, {"medium", tl.Medium}, {"low", tl.Low}} {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("classifier.timelines.%s must be positive, got %d", f.name, f.v))
		}
	}
	if c.Matcher.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("matcher.max_results must not be negative, got %d", c.Matcher.MaxResults))
	}
	if c.Cache.Size < 0 {
		errs = append(errs, fmt.Errorf("cache.size must not be negative, got %d", c.Cache.Size))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL))
	}
	if w := c.Correlation.WindowSeconds; w < correlate.MinWindow || w > correlate.MaxWindow {
		errs = append(errs, fmt.Errorf("correlation.window_seconds must be within %d..%d, got %d", correlate.MinWindow, correlate.MaxWindow, w))
	}
	if c.Batch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	for i, a := range c.Alerts {
		if a.URL == "" {
			errs = append(errs, fmt.Errorf("alerts[%d]: url is required", i))
		}
		if rl := a.RateLimit; rl != nil && (rl.MaxRequests < 0 || rl.Window < 0) {
			errs = append(errs, fmt.Errorf("alerts[%d].rate_limit must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// DefaultConfigYAML returns a commented YAML string for init-config.
func DefaultConfigYAML() string {
	return `# triagewatch configuration
# Generated by: triagewatch init-config
#
# Triage order (cannot be changed):
#   1. Classify the event (keyword rules, source rules, severity code, default)
#   2. Look up matching procedures
#   3. Merge procedure overrides, actions and timelines into the decision

# Response window in minutes per threat level.
classifier:
  timelines:
    critical: 2
    high: 5
    medium: 15
    low: 60

# Procedure lookup. An empty category searches every procedure.
matcher:
  max_results: 3
  category: ""

# Merged decisions are cached by event signature. size: 0 disables caching.
cache:
  size: 1024
  ttl: 10m

# Badge correlation window, clamped to 30..60 seconds.
correlation:
  window_seconds: 60

# Parallel workers for batch triage.
batch:
  workers: 8

logging:
  level: info
  format: console # console | json

# Webhook alerts for merged decisions.
# events: threat levels (critical, high, medium, low), escalation, sop_override
# format: generic | slack | pagerduty
# rate_limit: at most max_requests alerts per alarm (event type and summary) per window
alerts: []
#  - url: https://hooks.slack.com/services/XXX
#    format: slack
#    events: [critical, escalation]
#    rate_limit:
#      max_requests: 3
#      window: 5m
`
}
