// Package config loads tokenwatch configuration from YAML with environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"token-dashboard-sync/internal/journal"
	"token-dashboard-sync/internal/logger"
	"token-dashboard-sync/internal/storage"
	"token-dashboard-sync/internal/tokensync"
	"token-dashboard-sync/internal/transport"
)

// Environment variables that override file values.
const (
	EnvWSEndpoint    = "TOKENWATCH_WS_ENDPOINT"
	EnvAPIURL        = "TOKENWATCH_API_URL"
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickHouseDSN = "CLICKHOUSE_DSN"
	EnvLogLevel      = "LOG_LEVEL"
)

type Config struct {
	Service ServiceConfig `yaml:"service"`
	Sync    SyncConfig    `yaml:"sync"`
	Socket  SocketConfig  `yaml:"socket"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Journal JournalConfig `yaml:"journal"`
	Logging logger.Config `yaml:"logging"`
}

type ServiceConfig struct {
	HTTPAddr string `yaml:"http_addr"` // health/metrics/status listener; empty disables it
	Profile  string `yaml:"profile"`   // last-viewed key
}

type SyncConfig struct {
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
}

type SocketConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	Reconnect         bool          `yaml:"reconnect"`
}

type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst  int           `yaml:"rate_burst"`
}

type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`   // empty selects the in-memory store
	ClickHouseDSN string `yaml:"clickhouse_dsn"` // must name a database; empty selects the in-memory journal
}

type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// Default returns a configuration usable against a local token service.
func Default() Config {
	sock := transport.DefaultSocketConfig()
	return Config{
		Service: ServiceConfig{
			HTTPAddr: ":8090",
			Profile:  storage.DefaultProfile,
		},
		Sync: SyncConfig{FallbackTimeout: tokensync.DefaultFallbackTimeout},
		Socket: SocketConfig{
			Endpoint:          "http://localhost:3001",
			ReconnectDelay:    sock.ReconnectDelay,
			MaxReconnectDelay: sock.MaxReconnectDelay,
			HandshakeTimeout:  sock.HandshakeTimeout,
			Reconnect:         sock.Reconnect,
		},
		API: APIConfig{
			BaseURL: "http://localhost:3001",
			Timeout: 10 * time.Second,
		},
		Journal: JournalConfig{
			Enabled:       true,
			BatchSize:     journal.DefaultBatchSize,
			FlushInterval: journal.DefaultFlushInterval,
			BufferSize:    journal.DefaultBufferSize,
		},
		Logging: logger.DefaultConfig(),
	}
}

// Load reads path over Default, applies environment overrides and validates.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvWSEndpoint)); v != "" {
		cfg.Socket.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvClickHouseDSN)); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.Socket.Endpoint == "" {
		return fmt.Errorf("socket.endpoint is required")
	}
	if _, err := transport.SocketURL(c.Socket.Endpoint); err != nil {
		return fmt.Errorf("socket.endpoint: %w", err)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url '%s' must be an http(s) URL", c.API.BaseURL)
	}
	if c.Sync.FallbackTimeout <= 0 {
		return fmt.Errorf("sync.fallback_timeout must be greater than 0")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be greater than 0")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if c.Service.Profile == "" {
		return fmt.Errorf("service.profile is required")
	}
	if c.Journal.Enabled {
		if c.Journal.BatchSize <= 0 {
			return fmt.Errorf("journal.batch_size must be greater than 0")
		}
		if c.Journal.FlushInterval <= 0 {
			return fmt.Errorf("journal.flush_interval must be greater than 0")
		}
		if c.Journal.BufferSize <= 0 {
			return fmt.Errorf("journal.buffer_size must be greater than 0")
		}
	}
	return nil
}

// TransportConfig converts the socket section for transport.NewSocketChannel.
func (c *Config) TransportConfig() *transport.SocketConfig {
	sock := transport.DefaultSocketConfig()
	if c.Socket.ReconnectDelay > 0 {
		sock.ReconnectDelay = c.Socket.ReconnectDelay
	}
	if c.Socket.MaxReconnectDelay > 0 {
		sock.MaxReconnectDelay = c.Socket.MaxReconnectDelay
	}
	if c.Socket.HandshakeTimeout > 0 {
		sock.HandshakeTimeout = c.Socket.HandshakeTimeout
	}
	sock.Reconnect = c.Socket.Reconnect
	return &sock
}

// JournalWriterConfig converts the journal section for journal.NewWriter.
func (c *Config) JournalWriterConfig() journal.Config {
	return journal.Config{
		BatchSize:     c.Journal.BatchSize,
		FlushInterval: c.Journal.FlushInterval,
		BufferSize:    c.Journal.BufferSize,
	}
}
