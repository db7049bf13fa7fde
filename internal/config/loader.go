package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NEURALTRADE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NEURALTRADE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "NEURALTRADE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NEURALTRADE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NEURALTRADE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NEURALTRADE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NEURALTRADE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NEURALTRADE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NEURALTRADE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NEURALTRADE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NEURALTRADE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NEURALTRADE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "NEURALTRADE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NEURALTRADE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NEURALTRADE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NEURALTRADE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NEURALTRADE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NEURALTRADE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "NEURALTRADE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NEURALTRADE_S3_REGION")
	setStr(&cfg.S3.Bucket, "NEURALTRADE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NEURALTRADE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NEURALTRADE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NEURALTRADE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NEURALTRADE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "NEURALTRADE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "NEURALTRADE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NEURALTRADE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RequestLimit, "NEURALTRADE_SERVER_REQUEST_LIMIT")
	setDuration(&cfg.Server.RequestWindow, "NEURALTRADE_SERVER_REQUEST_WINDOW")

	// ── Admin ──
	setStr(&cfg.Admin.Owner, "NEURALTRADE_ADMIN_OWNER")
	setStr(&cfg.Admin.APIToken, "NEURALTRADE_ADMIN_API_TOKEN")
	setStr(&cfg.Admin.EncryptedTokenPath, "NEURALTRADE_ADMIN_ENCRYPTED_TOKEN_PATH")
	setStr(&cfg.Admin.TokenPassword, "NEURALTRADE_ADMIN_TOKEN_PASSWORD")
	setStringSlice(&cfg.Admin.AuthorizedCallers, "NEURALTRADE_ADMIN_AUTHORIZED_CALLERS")
	setStringSlice(&cfg.Admin.ApprovedTokens, "NEURALTRADE_ADMIN_APPROVED_TOKENS")
	setBool(&cfg.Admin.StartPaused, "NEURALTRADE_ADMIN_START_PAUSED")

	// ── Oracle ──
	setDuration(&cfg.Oracle.MaxStaleness, "NEURALTRADE_ORACLE_MAX_STALENESS")
	setDuration(&cfg.Oracle.CacheTTL, "NEURALTRADE_ORACLE_CACHE_TTL")

	// ── Engine ──
	setStr(&cfg.Engine.Backend, "NEURALTRADE_ENGINE_BACKEND")

	// ── Rebalance ──
	setStr(&cfg.Rebalance.QuoteToken, "NEURALTRADE_REBALANCE_QUOTE_TOKEN")
	setInt64(&cfg.Rebalance.DriftThresholdBps, "NEURALTRADE_REBALANCE_DRIFT_THRESHOLD_BPS")
	setDuration(&cfg.Rebalance.CheckInterval, "NEURALTRADE_REBALANCE_CHECK_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "NEURALTRADE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "NEURALTRADE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "NEURALTRADE_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "NEURALTRADE_MODE")
	setStr(&cfg.LogLevel, "NEURALTRADE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
