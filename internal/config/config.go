package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brickops/fieldsync/internal/events"
)

// Config holds all application configuration.
type Config struct {
	// Upstream open-data API
	API APIConfig `json:"api" mapstructure:"api"`

	// Local storage paths and backend
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// TTLs for the offline cache store
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Batched loading behavior
	Coordinator CoordinatorConfig `json:"coordinator" mapstructure:"coordinator"`

	// Live refresh scheduling
	Refresh RefreshConfig `json:"refresh" mapstructure:"refresh"`

	// Offline mutation queue
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Dashboard publishing
	Dashboard DashboardConfig `json:"dashboard" mapstructure:"dashboard"`

	// Logging
	Log events.LogConfig `json:"log" mapstructure:"log"`
}

// APIConfig for the NYC Open Data (Socrata) endpoints.
type APIConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	AppToken   string        `json:"app_token,omitempty" mapstructure:"app_token"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`

	// UseMock swaps the HTTP feed source for the deterministic generator.
	// Field crews without an app token run in this mode.
	UseMock bool `json:"use_mock" mapstructure:"use_mock"`
}

// StorageConfig for local persistence.
type StorageConfig struct {
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
	// Backend selects the durable key/value store: "json" or "sqlite".
	Backend string `json:"backend" mapstructure:"backend"`
}

// CacheConfig carries the per-entity-class TTLs.
type CacheConfig struct {
	ViolationTTL  time.Duration `json:"violation_ttl" mapstructure:"violation_ttl"`
	InspectionTTL time.Duration `json:"inspection_ttl" mapstructure:"inspection_ttl"`
	PermitTTL     time.Duration `json:"permit_ttl" mapstructure:"permit_ttl"`
	SummaryTTL    time.Duration `json:"summary_ttl" mapstructure:"summary_ttl"`
}

// CoordinatorConfig for batched multi-building loads.
type CoordinatorConfig struct {
	CacheTimeout  time.Duration `json:"cache_timeout" mapstructure:"cache_timeout"`
	BatchSize     int           `json:"batch_size" mapstructure:"batch_size"`
	BatchDelay    time.Duration `json:"batch_delay" mapstructure:"batch_delay"`
	RetryAttempts int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
}

// RefreshConfig for the live refresh scheduler.
type RefreshConfig struct {
	Interval     time.Duration `json:"interval" mapstructure:"interval"`
	FetchTimeout time.Duration `json:"fetch_timeout" mapstructure:"fetch_timeout"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
	Buildings    []string      `json:"buildings" mapstructure:"buildings"`
}

// QueueConfig for the offline sync queue.
type QueueConfig struct {
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`
}

// DashboardConfig for the websocket broadcast hub.
type DashboardConfig struct {
	Addr    string `json:"addr" mapstructure:"addr"`
	Channel string `json:"channel" mapstructure:"channel"`
	// NotifyURL receives critical alerts as fire-and-forget POSTs.
	// Empty means alerts only go to the log.
	NotifyURL string `json:"notify_url,omitempty" mapstructure:"notify_url"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".fieldsync"

	return &Config{
		API: APIConfig{
			BaseURL:    "https://data.cityofnewyork.us",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "fieldsync/1.0",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			Backend: "json",
		},
		Cache: CacheConfig{
			ViolationTTL:  30 * time.Minute,
			InspectionTTL: 60 * time.Minute,
			PermitTTL:     24 * time.Hour,
			SummaryTTL:    15 * time.Minute,
		},
		Coordinator: CoordinatorConfig{
			CacheTimeout:  5 * time.Minute,
			BatchSize:     10,
			BatchDelay:    time.Second,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
		Refresh: RefreshConfig{
			Interval:     5 * time.Minute,
			FetchTimeout: 15 * time.Second,
			MaxRetries:   3,
		},
		Queue: QueueConfig{
			MaxRetries: 3,
		},
		Dashboard: DashboardConfig{
			Addr:    "127.0.0.1:8787",
			Channel: "dashboard",
		},
		Log: events.LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" && !c.API.UseMock {
		return errors.New("api.base_url is required unless api.use_mock is set")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.Storage.Backend != "json" && c.Storage.Backend != "sqlite" {
		return fmt.Errorf("invalid storage.backend: %s", c.Storage.Backend)
	}

	for name, ttl := range map[string]time.Duration{
		"cache.violation_ttl":  c.Cache.ViolationTTL,
		"cache.inspection_ttl": c.Cache.InspectionTTL,
		"cache.permit_ttl":     c.Cache.PermitTTL,
		"cache.summary_ttl":    c.Cache.SummaryTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Coordinator.BatchSize <= 0 {
		return errors.New("coordinator.batch_size must be positive")
	}

	if c.Coordinator.RetryAttempts < 1 {
		return errors.New("coordinator.retry_attempts must be at least 1")
	}

	if c.Refresh.Interval <= 0 {
		return errors.New("refresh.interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// StateDir returns the durable state directory under the data dir.
func (c *Config) StateDir() string {
	return filepath.Join(c.Storage.DataDir, "state")
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.StateDir(),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
