package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Matching   MatchingConfig   `yaml:"matching"`
	Stream     StreamConfig     `yaml:"stream"`
	Database   DatabaseConfig   `yaml:"database"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
}

type RecognizerConfig struct {
	URL     string `yaml:"url"`     // face detect/embed service base URL
	Timeout int    `yaml:"timeout"` // per-call timeout in seconds (default 10)
}

// CallTimeout returns the per-call timeout as a duration.
func (c *RecognizerConfig) CallTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

type MatchingConfig struct {
	// ThresholdPercent is the minimum similarity (as a percentage, 0-100)
	// required to accept a match. Resolved to a [0,1] similarity once per
	// check-in session, never re-read per frame.
	ThresholdPercent float64 `yaml:"threshold_percent"`
	EmbeddingDim     int     `yaml:"embedding_dim"`
	// HNSWCutoff is the roster size at which sessions switch from the
	// linear scanner to the HNSW index. 0 disables HNSW entirely.
	HNSWCutoff int `yaml:"hnsw_cutoff"`
}

// Threshold returns the similarity threshold in [0,1].
func (c *MatchingConfig) Threshold() float64 {
	return c.ThresholdPercent / 100.0
}

type StreamConfig struct {
	PacingMs       int `yaml:"pacing_ms"`        // per-frame pacing sleep (default 100)
	MaxErrors      int `yaml:"max_errors"`       // consecutive transient errors before the connection closes
	IdleTimeoutSec int `yaml:"idle_timeout_sec"` // max wait for a frame before the connection closes (default 60)
}

// Pacing returns the per-frame pacing sleep as a duration.
func (c *StreamConfig) Pacing() time.Duration {
	if c.PacingMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.PacingMs) * time.Millisecond
}

// IdleTimeout returns the per-frame receive timeout as a duration.
func (c *StreamConfig) IdleTimeout() time.Duration {
	if c.IdleTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type EvidenceConfig struct {
	Dir      string `yaml:"dir"`       // directory for sign-in snapshots; empty disables evidence
	MaxWidth int    `yaml:"max_width"` // snapshots wider than this get downscaled (default 640)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// Load builds the configuration from environment variables. If
// MEETSIGN_CONFIG points to a YAML file, values from that file override
// the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Recognizer: RecognizerConfig{
			URL:     os.Getenv("RECOGNIZER_URL"),
			Timeout: envInt("RECOGNIZER_TIMEOUT", 10),
		},
		Matching: MatchingConfig{
			ThresholdPercent: envFloat("FACE_THRESHOLD_PERCENT", 70),
			EmbeddingDim:     envInt("EMBEDDING_DIM", 512),
			HNSWCutoff:       envInt("HNSW_CUTOFF", 256),
		},
		Stream: StreamConfig{
			PacingMs:       envInt("STREAM_PACING_MS", 100),
			MaxErrors:      envInt("STREAM_MAX_ERRORS", 10),
			IdleTimeoutSec: envInt("STREAM_IDLE_TIMEOUT_SEC", 60),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Evidence: EvidenceConfig{
			Dir:      os.Getenv("EVIDENCE_DIR"),
			MaxWidth: envInt("EVIDENCE_MAX_WIDTH", 640),
		},
	}

	if path := os.Getenv("MEETSIGN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	return cfg, nil
}
