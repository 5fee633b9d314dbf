// Package config loads playpulse configuration from defaults, an optional
// YAML file and PLAYPULSE_* environment variables, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/graaaaa/playpulse/internal/appinfo"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/validation"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Key lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the full application configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	Tracking     TrackingConfig     `koanf:"tracking"`
	Gateway      GatewayConfig      `koanf:"gateway"`
	Lock         LockConfig         `koanf:"lock"`
	Logging      LoggingConfig      `koanf:"logging"`
	DefaultEvent DefaultEventConfig `koanf:"default_event"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimit         float64       `koanf:"rate_limit" validate:"gte=0"`
	RateBurst         int           `koanf:"rate_burst" validate:"gte=0"`
	AdminUser         string        `koanf:"admin_user"`
	AdminPasswordHash Secret        `koanf:"admin_password_hash"`
}

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	Driver     string         `koanf:"driver" validate:"oneof=sqlite postgres"`
	SQLitePath string         `koanf:"sqlite_path"`
	Postgres   PostgresConfig `koanf:"postgres"`
}

// PostgresConfig configures the networked backend's pool.
type PostgresConfig struct {
	DSN             Secret        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// TrackingConfig holds the session and aggregation tunables.
type TrackingConfig struct {
	// Scope is the guild scope whose active event receives live writes.
	Scope string `koanf:"scope" validate:"required"`
	// StaleAfter is the age at which an open session is force-closed.
	StaleAfter time.Duration `koanf:"stale_after" validate:"gt=0"`
	// FreshnessWindow bounds the game snapshots used when no sessions are open.
	FreshnessWindow time.Duration `koanf:"freshness_window" validate:"gt=0"`
	// SamplingInterval is both the snapshot poll period and the per-sample
	// weight of the snapshot-based playtime estimate.
	SamplingInterval time.Duration `koanf:"sampling_interval" validate:"gt=0"`
	// ReapInterval is the stale-session sweep period.
	ReapInterval time.Duration `koanf:"reap_interval" validate:"gt=0"`
	// QueryTimeout bounds each aggregation query.
	QueryTimeout time.Duration `koanf:"query_timeout" validate:"gt=0"`
	// ActivityLookback is the recent-activity window.
	ActivityLookback time.Duration `koanf:"activity_lookback" validate:"gt=0"`
	// IngestWorkers is the number of presence dispatch workers.
	IngestWorkers int `koanf:"ingest_workers" validate:"gte=1"`
}

// GatewayConfig configures the Discord gateway source.
type GatewayConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   Secret `koanf:"token"`
	GuildID string `koanf:"guild_id"`
}

// LockConfig selects the per-(user, game) lock backend.
type LockConfig struct {
	Backend       string        `koanf:"backend" validate:"oneof=local redis"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword Secret        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
	TTL           time.Duration `koanf:"ttl"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DefaultEventConfig is used to bootstrap an event when a scope has none.
type DefaultEventConfig struct {
	Name     string        `koanf:"name" validate:"required"`
	Duration time.Duration `koanf:"duration" validate:"gt=0"`
	Timezone string        `koanf:"timezone" validate:"timezone"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       10,
			RateBurst:       20,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Tracking: TrackingConfig{
			Scope:            model.DefaultScope,
			StaleAfter:       8 * time.Hour,
			FreshnessWindow:  5 * time.Minute,
			SamplingInterval: 5 * time.Minute,
			ReapInterval:     10 * time.Minute,
			QueryTimeout:     5 * time.Second,
			ActivityLookback: 24 * time.Hour,
			IngestWorkers:    4,
		},
		Lock: LockConfig{
			Backend: LockLocal,
			TTL:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		DefaultEvent: DefaultEventConfig{
			Name:     "Default Event",
			Duration: 365 * 24 * time.Hour,
			Timezone: "UTC",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and environment variables. An empty path skips the file layer.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", path).Msg("config file unreadable, using defaults")
		}
	}

	if err := k.Load(env.Provider(appinfo.EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg = normalizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps PLAYPULSE_TRACKING__STALE_AFTER to tracking.stale_after.
func envKey(s string) string {
	s = strings.TrimPrefix(s, appinfo.EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// normalizeConfig fills derived values and clamps unusable ones to defaults.
func normalizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.SQLitePath == "" {
		if dir, err := DataDir(); err == nil {
			cfg.Storage.SQLitePath = filepath.Join(dir, appinfo.DatabaseFileName)
		}
	}

	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if cfg.Lock.TTL <= 0 {
		cfg.Lock.TTL = defaults.Lock.TTL
	}
	if cfg.Tracking.IngestWorkers <= 0 {
		cfg.Tracking.IngestWorkers = defaults.Tracking.IngestWorkers
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	return cfg
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch {
	case c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "":
		return fmt.Errorf("invalid config: %w: storage.sqlite_path is required", model.ErrValidation)
	case c.Storage.Driver == DriverPostgres && c.Storage.Postgres.DSN.IsEmpty():
		return fmt.Errorf("invalid config: %w: storage.postgres.dsn is required", model.ErrValidation)
	case c.Lock.Backend == LockRedis && c.Lock.RedisAddr == "":
		return fmt.Errorf("invalid config: %w: lock.redis_addr is required", model.ErrValidation)
	case c.Gateway.Enabled && (c.Gateway.Token.IsEmpty() || c.Gateway.GuildID == ""):
		return fmt.Errorf("invalid config: %w: gateway.token and gateway.guild_id are required", model.ErrValidation)
	case c.Server.AdminUser != "" && c.Server.AdminPasswordHash.IsEmpty():
		return fmt.Errorf("invalid config: %w: server.admin_password_hash is required with admin_user", model.ErrValidation)
	}
	return nil
}

// LoggingConfig converts the logging section to logging.Config.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Caller: c.Logging.Caller,
	}
}
