package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader reads configuration from file and environment. Precedence:
// defaults < config file < FIELDSYNC_* environment variables.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty path searches the default
// locations (./fieldsync.yaml, ~/.config/fieldsync/fieldsync.yaml).
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads, merges, and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	setDefaults(v, DefaultConfig())

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
	} else {
		v.SetConfigName("fieldsync")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fieldsync")
	}

	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file is fine; defaults plus env apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override any key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.app_token", d.API.AppToken)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.max_retries", d.API.MaxRetries)
	v.SetDefault("api.user_agent", d.API.UserAgent)
	v.SetDefault("api.use_mock", d.API.UseMock)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.backend", d.Storage.Backend)

	v.SetDefault("cache.violation_ttl", d.Cache.ViolationTTL)
	v.SetDefault("cache.inspection_ttl", d.Cache.InspectionTTL)
	v.SetDefault("cache.permit_ttl", d.Cache.PermitTTL)
	v.SetDefault("cache.summary_ttl", d.Cache.SummaryTTL)

	v.SetDefault("coordinator.cache_timeout", d.Coordinator.CacheTimeout)
	v.SetDefault("coordinator.batch_size", d.Coordinator.BatchSize)
	v.SetDefault("coordinator.batch_delay", d.Coordinator.BatchDelay)
	v.SetDefault("coordinator.retry_attempts", d.Coordinator.RetryAttempts)
	v.SetDefault("coordinator.retry_delay", d.Coordinator.RetryDelay)

	v.SetDefault("refresh.interval", d.Refresh.Interval)
	v.SetDefault("refresh.fetch_timeout", d.Refresh.FetchTimeout)
	v.SetDefault("refresh.max_retries", d.Refresh.MaxRetries)
	v.SetDefault("refresh.buildings", d.Refresh.Buildings)

	v.SetDefault("queue.max_retries", d.Queue.MaxRetries)

	v.SetDefault("dashboard.addr", d.Dashboard.Addr)
	v.SetDefault("dashboard.channel", d.Dashboard.Channel)
	v.SetDefault("dashboard.notify_url", d.Dashboard.NotifyURL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}
