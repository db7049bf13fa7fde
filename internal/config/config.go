// Package config defines the top-level configuration for the trade core
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NEURALTRADE_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Oracle    OracleConfig    `toml:"oracle"`
	Engine    EngineConfig    `toml:"engine"`
	Rebalance RebalanceConfig `toml:"rebalance"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters. RequestLimit of zero disables
// per-client rate limiting.
type ServerConfig struct {
	Enabled       bool     `toml:"enabled"`
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	RequestLimit  int      `toml:"request_limit"`
	RequestWindow duration `toml:"request_window"`
}

// AdminConfig holds the administrative identity and API credentials. The
// owner address is the only identity allowed to change strategy policy,
// token approvals, and the pause switch.
type AdminConfig struct {
	Owner              string   `toml:"owner"`
	APIToken           string   `toml:"api_token"`
	EncryptedTokenPath string   `toml:"encrypted_token_path"`
	TokenPassword      string   `toml:"token_password"`
	AuthorizedCallers  []string `toml:"authorized_callers"`
	ApprovedTokens     []string `toml:"approved_tokens"`
	StartPaused        bool     `toml:"start_paused"`
}

// OracleConfig holds price-feed parameters. Prices older than MaxStaleness
// are treated as unavailable.
type OracleConfig struct {
	MaxStaleness duration `toml:"max_staleness"`
	CacheTTL     duration `toml:"cache_ttl"`
}

// EngineConfig holds trade-execution parameters. Backend selects where the
// volume accumulators and account locks live: "memory" for a single-node
// deployment, "redis" when several instances share state.
type EngineConfig struct {
	Backend string `toml:"backend"`
}

// RebalanceConfig holds portfolio-rebalancer parameters. QuoteToken is the
// settlement token every rebalance trade routes through.
type RebalanceConfig struct {
	QuoteToken        string   `toml:"quote_token"`
	DriftThresholdBps int64    `toml:"drift_threshold_bps"`
	CheckInterval     duration `toml:"check_interval"`
}

// ArchiveConfig holds trade/audit archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "tradecore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradecore-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			RequestLimit:  0,
			RequestWindow: duration{1 * time.Minute},
		},
		Admin: AdminConfig{
			StartPaused: false,
		},
		Oracle: OracleConfig{
			MaxStaleness: duration{5 * time.Minute},
			CacheTTL:     duration{30 * time.Second},
		},
		Engine: EngineConfig{
			Backend: "redis",
		},
		Rebalance: RebalanceConfig{
			DriftThresholdBps: 500,
			CheckInterval:     duration{1 * time.Hour},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":     true,
	"standalone": true,
	"rebalance":  true,
	"archive":    true,
	"full":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validBackends enumerates the accepted values for Engine.Backend.
var validBackends = map[string]bool{
	"memory": true,
	"redis":  true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, standalone, rebalance, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres — standalone mode runs on in-memory stores and skips it.
	if c.Mode != "standalone" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis — required whenever the engine backend is redis.
	if c.Engine.Backend == "redis" && c.Mode != "standalone" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 — only needed when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestLimit < 0 {
			errs = append(errs, "server: request_limit must be >= 0")
		}
		if c.Server.RequestLimit > 0 && c.Server.RequestWindow.Duration <= 0 {
			errs = append(errs, "server: request_window must be positive when request_limit is set")
		}
	}

	// Admin
	if c.Admin.Owner == "" {
		errs = append(errs, "admin: owner address must be set")
	} else if !common.IsHexAddress(c.Admin.Owner) {
		errs = append(errs, fmt.Sprintf("admin: owner %q is not a valid hex address", c.Admin.Owner))
	}
	if c.Admin.APIToken == "" && c.Admin.EncryptedTokenPath == "" {
		errs = append(errs, "admin: either api_token or encrypted_token_path must be set")
	}
	if c.Admin.EncryptedTokenPath != "" && c.Admin.TokenPassword == "" {
		errs = append(errs, "admin: token_password is required when encrypted_token_path is set")
	}
	for _, addr := range c.Admin.AuthorizedCallers {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("admin: authorized caller %q is not a valid hex address", addr))
		}
	}
	for _, addr := range c.Admin.ApprovedTokens {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("admin: approved token %q is not a valid hex address", addr))
		}
	}

	// Oracle
	if c.Oracle.MaxStaleness.Duration <= 0 {
		errs = append(errs, "oracle: max_staleness must be positive")
	}
	if c.Oracle.CacheTTL.Duration <= 0 {
		errs = append(errs, "oracle: cache_ttl must be positive")
	}

	// Engine
	if !validBackends[c.Engine.Backend] {
		errs = append(errs, fmt.Sprintf("engine: unknown backend %q (valid: memory, redis)", c.Engine.Backend))
	}

	// Rebalance
	if c.Rebalance.QuoteToken != "" && !common.IsHexAddress(c.Rebalance.QuoteToken) {
		errs = append(errs, fmt.Sprintf("rebalance: quote_token %q is not a valid hex address", c.Rebalance.QuoteToken))
	}
	if c.Rebalance.DriftThresholdBps <= 0 || c.Rebalance.DriftThresholdBps > 10_000 {
		errs = append(errs, fmt.Sprintf("rebalance: drift_threshold_bps must be 1-10000, got %d", c.Rebalance.DriftThresholdBps))
	}
	if c.Rebalance.CheckInterval.Duration <= 0 {
		errs = append(errs, "rebalance: check_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
