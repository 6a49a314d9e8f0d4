// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/prefix-proxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Prefix    string `kong:"help='Required request path prefix (overrides config).',env='PREFIX'"`
	MaxConns  int    `kong:"help='Maximum concurrent client connections (overrides config).',env='MAX_CONNS'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Verbosity *int   `kong:"short='v',help='Verbosity -1..2; maps onto log level and overrides it.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Admin   AdminConfig   `toml:"admin"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig holds the proxy listener and connection-pipeline settings.
type ServerConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	Prefix string `toml:"prefix"`

	MaxConns  int `toml:"max_conns"`
	QueueSize int `toml:"queue_size"` // -1 disables queueing; 0 means "use default" (max_conns)

	ReadSize     int `toml:"read_size"`      // per-read byte bound, framing and relay chunks alike
	MaxHeadBytes int `toml:"max_head_bytes"` // cap on an accumulating request head

	QueueTimeoutMS   int `toml:"queue_timeout_ms"`
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`
	IdleTimeoutMS    int `toml:"idle_timeout_ms"`

	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls accept-loop rate limiting.
type RateLimitConfig struct {
	Enabled          bool    `toml:"enabled"`
	AcceptsPerSecond float64 `toml:"accepts_per_second"`
}

// AdminConfig holds the operator HTTP listener settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// MetricsConfig holds Prometheus metrics settings for the admin listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it
// searches /etc/prefix-proxy/config.toml then configs/config.toml; a
// missing file is not an error — the proxy runs on defaults and CLI
// flags alone.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Prefix != "" {
		c.Server.Prefix = cli.Prefix
	}
	if cli.MaxConns != 0 {
		c.Server.MaxConns = cli.MaxConns
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.Verbosity != nil {
		c.Log.Level = LevelForVerbosity(*cli.Verbosity)
	}
}

// LevelForVerbosity maps the -1..2 verbosity knob onto a log level:
// -1 errors only, 0 warnings, 1 connection-level events, 2 socket-level
// events. Values outside the range clamp to the nearest end.
func LevelForVerbosity(v int) string {
	switch {
	case v <= -1:
		return "error"
	case v == 0:
		return "warn"
	case v == 1:
		return "info"
	default:
		return "debug"
	}
}

func (c *Config) validate() error {
	if c.Server.Prefix != "" && c.Server.Prefix[0] != '/' {
		return fmt.Errorf("server.prefix must start with '/'; got %q", c.Server.Prefix)
	}

	// Numeric bounds. Zero means "unset" for the integer fields because
	// TOML cannot distinguish an explicit 0 from an omitted key.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.MaxConns < 0 {
		return fmt.Errorf("server.max_conns must be non-negative; got %d", c.Server.MaxConns)
	}
	if c.Server.QueueSize < -1 {
		return fmt.Errorf("server.queue_size must be >= -1; got %d", c.Server.QueueSize)
	}
	if c.Server.ReadSize < 0 {
		return fmt.Errorf("server.read_size must be non-negative; got %d", c.Server.ReadSize)
	}
	if c.Server.MaxHeadBytes < 0 {
		return fmt.Errorf("server.max_head_bytes must be non-negative; got %d", c.Server.MaxHeadBytes)
	}
	if c.Server.MaxHeadBytes > 0 && c.Server.ReadSize > 0 && c.Server.MaxHeadBytes < c.Server.ReadSize {
		return fmt.Errorf("server.max_head_bytes (%d) must be at least server.read_size (%d)",
			c.Server.MaxHeadBytes, c.Server.ReadSize)
	}
	for name, v := range map[string]int{
		"server.queue_timeout_ms":   c.Server.QueueTimeoutMS,
		"server.connect_timeout_ms": c.Server.ConnectTimeoutMS,
		"server.idle_timeout_ms":    c.Server.IdleTimeoutMS,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", name, v)
		}
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.AcceptsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.accepts_per_second must be > 0 when rate limiting is enabled; got %v",
			c.Server.RateLimit.AcceptsPerSecond)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/statusz"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. Setting port=0 in the config
// file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Prefix == "" {
		c.Server.Prefix = "/proxy/"
	}
	if c.Server.MaxConns == 0 {
		c.Server.MaxConns = 5
	}
	if c.Server.QueueSize == 0 {
		c.Server.QueueSize = c.Server.MaxConns
	}
	if c.Server.ReadSize == 0 {
		c.Server.ReadSize = 4096
	}
	if c.Server.MaxHeadBytes == 0 {
		c.Server.MaxHeadBytes = 2 * c.Server.ReadSize
	}
	if c.Server.QueueTimeoutMS == 0 {
		c.Server.QueueTimeoutMS = 5000
	}
	if c.Server.ConnectTimeoutMS == 0 {
		c.Server.ConnectTimeoutMS = 5000
	}
	if c.Server.IdleTimeoutMS == 0 {
		c.Server.IdleTimeoutMS = 30000
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "127.0.0.1"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 8001
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the proxy listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QueueTimeout returns the bounded-queue wait limit as a duration.
func (c *ServerConfig) QueueTimeout() time.Duration {
	return time.Duration(c.QueueTimeoutMS) * time.Millisecond
}

// ConnectTimeout returns the origin dial limit as a duration.
func (c *ServerConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// IdleTimeout returns the per-read relay bound as a duration.
func (c *ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}
