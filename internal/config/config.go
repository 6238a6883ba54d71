// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (STRAND_ prefix, runtime override)
//  2. Config file (./config.yaml or ~/.strand/config.yaml)
//  3. Defaults
//
// Sensitive values (database password, API key) are never logged.
// Validation uses sentinel errors so callers can branch with errors.Is().
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the generation service API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidListenAddr indicates the HTTP listen address is malformed.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRedisAddr indicates the Redis address is malformed.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidIdleTimeout indicates the stream idle timeout is out of range.
	ErrInvalidIdleTimeout = errors.New("invalid stream idle timeout")

	// ErrInvalidFlushInterval indicates the artifact flush interval is out of range.
	ErrInvalidFlushInterval = errors.New("invalid artifact flush interval")

	// ErrInvalidPageSize indicates the history page size is out of range.
	ErrInvalidPageSize = errors.New("invalid history page size")
)

const (
	// DefaultListenAddr is the default HTTP listen address.
	DefaultListenAddr = "127.0.0.1:8080"

	// DefaultModel is the generation model requested when a submission
	// does not name one.
	DefaultModel = "gpt-4o-mini"

	// DefaultIdleTimeout bounds the wait for the next stream event.
	// A stalled stream surfaces as a transport error instead of hanging.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultFlushInterval is the minimum gap between artifact version
	// appends while streaming. Keeps version history at update
	// boundaries instead of one version per token.
	DefaultFlushInterval = 2 * time.Second

	// DefaultHistoryPageSize is the number of chats per history page.
	DefaultHistoryPageSize = 20

	// MaxHistoryPageSize bounds a single history page.
	MaxHistoryPageSize = 100
)

// Server holds HTTP server settings.
type Server struct {
	Addr string `mapstructure:"addr"`
}

// Postgres holds PostgreSQL connection settings.
type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the PostgreSQL connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Redis holds the optional Redis cache settings. When disabled, the
// in-memory cache implementations are used.
type Redis struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
}

// OpenAI holds generation-service client settings.
type OpenAI struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// Stream holds streaming-turn settings.
type Stream struct {
	// IdleTimeout bounds each wait for the next stream event.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ArtifactFlushInterval throttles artifact version appends.
	ArtifactFlushInterval time.Duration `mapstructure:"artifact_flush_interval"`
}

// Log holds logging settings.
type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// History holds chat listing settings.
type History struct {
	PageSize int `mapstructure:"page_size"`
}

// Config is the root application configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Postgres Postgres `mapstructure:"postgres"`
	Redis    Redis    `mapstructure:"redis"`
	OpenAI   OpenAI   `mapstructure:"openai"`
	Stream   Stream   `mapstructure:"stream"`
	Log      Log      `mapstructure:"log"`
	History  History  `mapstructure:"history"`
}

// Load reads configuration from file, environment and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".strand"))
	}

	v.SetEnvPrefix("STRAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file is fine: env + defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultListenAddr)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "strand")
	v.SetDefault("postgres.dbname", "strand")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("openai.model", DefaultModel)
	v.SetDefault("openai.base_url", "")

	v.SetDefault("stream.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("stream.artifact_flush_interval", DefaultFlushInterval)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("history.page_size", DefaultHistoryPageSize)
}

// Validate checks the configuration for structural problems. It does
// not reach the network.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidListenAddr, c.Server.Addr)
	}

	if strings.TrimSpace(c.Postgres.Host) == "" {
		return ErrInvalidPostgresHost
	}
	if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.Postgres.Port)
	}
	if strings.TrimSpace(c.Postgres.DBName) == "" {
		return ErrInvalidPostgresDBName
	}

	if c.Redis.Enabled {
		if _, _, err := net.SplitHostPort(c.Redis.Addr); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidRedisAddr, c.Redis.Addr)
		}
	}

	if c.Stream.IdleTimeout < time.Second {
		return fmt.Errorf("%w: %s", ErrInvalidIdleTimeout, c.Stream.IdleTimeout)
	}
	if c.Stream.ArtifactFlushInterval < 100*time.Millisecond {
		return fmt.Errorf("%w: %s", ErrInvalidFlushInterval, c.Stream.ArtifactFlushInterval)
	}

	if c.History.PageSize < 1 || c.History.PageSize > MaxHistoryPageSize {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, c.History.PageSize)
	}

	return nil
}

// RequireAPIKey verifies the generation service credential is present.
// Separate from Validate so commands that never open a stream (migrate,
// vote-only deployments) can load config without one.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}
