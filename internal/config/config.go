package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ChrisColeTech/proxydash/internal/alerts"
	"github.com/ChrisColeTech/proxydash/internal/connection"
	"github.com/ChrisColeTech/proxydash/internal/cron"
	"github.com/ChrisColeTech/proxydash/internal/logger"
	"github.com/ChrisColeTech/proxydash/internal/upstream"
)

// FileConfig represents the top-level TOML structure.
//
// Example:
//
//	[upstream]
//	url = "http://127.0.0.1:8787"
//
//	[connection]
//	ws_url = "ws://127.0.0.1:8787/ws"
//	min_backoff = "500ms"
//	max_backoff = "10s"
//	max_attempts = 10
//
//	[alerts]
//	dedup_window = "1s"
//	stagger = "400ms"
//	dismiss_after = "4s"
//	suppression_window = "2s"
//
//	[server]
//	listen = ":8088"
//	base_path = "/api"
//
//	[history]
//	dsn = "sqlite:///var/lib/proxydash/history.db"
type FileConfig struct {
	Upstream   upstream.Config   `toml:"upstream" mapstructure:"upstream"`
	Connection connection.Config `toml:"connection" mapstructure:"connection"`
	Alerts     alerts.Config     `toml:"alerts" mapstructure:"alerts"`
	Reminder   cron.Config       `toml:"reminder" mapstructure:"reminder"`
	Log        logger.Config     `toml:"log" mapstructure:"log"`
	Server     ServerConfig      `toml:"server" mapstructure:"server"`
	History    HistoryConfig     `toml:"history" mapstructure:"history"`
	Metrics    MetricsConfig     `toml:"metrics" mapstructure:"metrics"`
}

// ServerConfig configures the dashboard's own REST surface.
type ServerConfig struct {
	Listen    string `toml:"listen" mapstructure:"listen"`         // default :8088
	BasePath  string `toml:"base_path" mapstructure:"base_path"`   // default /api
	TokenHash string `toml:"token_hash" mapstructure:"token_hash"` // bcrypt hash; empty disables auth
}

// HistoryConfig selects the history sink. Empty DSN disables history export.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// MetricsConfig toggles prometheus export and local process sampling.
type MetricsConfig struct {
	Enabled         bool          `toml:"enabled" mapstructure:"enabled"`
	ProcessInterval time.Duration `toml:"process_interval" mapstructure:"process_interval"`
}

// Default returns the built-in configuration for a local proxy.
func Default() FileConfig {
	return FileConfig{
		Upstream:   upstream.Config{URL: "http://127.0.0.1:8787", Timeout: 10 * time.Second},
		Connection: connection.Config{URL: "ws://127.0.0.1:8787/ws"},
		Server:     ServerConfig{Listen: ":8088", BasePath: "/api"},
		Metrics:    MetricsConfig{Enabled: true, ProcessInterval: 10 * time.Second},
	}
}

// Load reads a TOML config file and overlays it on the defaults.
func Load(path string) (FileConfig, error) {
	fc := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fc.Validate(); err != nil {
		return fc, err
	}
	return fc, nil
}

// Validate checks cross-field invariants that viper cannot express.
func (fc FileConfig) Validate() error {
	if fc.Connection.URL == "" {
		return fmt.Errorf("connection.ws_url is required")
	}
	if fc.Connection.MinBackoff < 0 || fc.Connection.MaxBackoff < 0 {
		return fmt.Errorf("connection backoff durations cannot be negative")
	}
	if fc.Connection.MinBackoff > 0 && fc.Connection.MaxBackoff > 0 &&
		fc.Connection.MinBackoff > fc.Connection.MaxBackoff {
		return fmt.Errorf("connection.min_backoff exceeds connection.max_backoff")
	}
	if fc.Connection.MaxAttempts < 0 {
		return fmt.Errorf("connection.max_attempts cannot be negative")
	}
	return nil
}
