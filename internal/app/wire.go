package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/neuraltrade/tradecore/internal/blob/s3"
	"github.com/neuraltrade/tradecore/internal/cache/redis"
	"github.com/neuraltrade/tradecore/internal/config"
	"github.com/neuraltrade/tradecore/internal/crypto"
	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/engine"
	"github.com/neuraltrade/tradecore/internal/server/handler"
	"github.com/neuraltrade/tradecore/internal/server/middleware"
	"github.com/neuraltrade/tradecore/internal/store/memory"
	"github.com/neuraltrade/tradecore/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Positions  domain.PositionStore
	Trades     domain.TradeStore
	Portfolios domain.PortfolioStore
	Policies   domain.PolicyStore
	Intents    domain.IntentStore
	Audit      domain.AuditStore

	// Engine collaborators
	Limiter domain.VolumeLimiter
	Locker  domain.AccountLocker
	Bus     domain.SignalBus
	Prices  domain.PriceSource

	// PricePoster accepts oracle submissions from the admin API. It writes to
	// the same backend Prices reads from.
	PricePoster handler.PricePoster

	// HTTP extras. Requests may be nil, which disables rate limiting.
	Requests middleware.RequestLimiter
	APIToken string
	Health   map[string]handler.Pinger

	// Archiver is set only when object storage is wired.
	Archiver *s3blob.Archiver
}

// needsPostgres returns true for modes that require a database connection.
// Standalone runs entirely on in-memory stores.
func needsPostgres(mode string) bool {
	return mode != "standalone"
}

// needsRedis returns true when the engine backend is redis and the mode does
// not force in-memory state.
func needsRedis(cfg *config.Config) bool {
	return cfg.Engine.Backend == "redis" && strings.ToLower(cfg.Mode) != "standalone"
}

// needsS3 returns true for configurations that archive to object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled || strings.ToLower(cfg.Mode) == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Health: make(map[string]handler.Pinger),
	}

	// --- API token (raw or decrypted from disk) ---
	token, err := crypto.LoadToken(crypto.TokenConfig{
		RawToken:           cfg.Admin.APIToken,
		EncryptedTokenPath: cfg.Admin.EncryptedTokenPath,
		TokenPassword:      cfg.Admin.TokenPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: api token: %w", err)
	}
	deps.APIToken = token

	mode := strings.ToLower(cfg.Mode)

	// --- PostgreSQL (all modes except standalone) ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)
		deps.Portfolios = postgres.NewPortfolioStore(pool)
		deps.Policies = postgres.NewPolicyStore(pool)
		deps.Intents = postgres.NewIntentStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient
	} else {
		deps.Positions = memory.NewPositionStore()
		deps.Trades = memory.NewTradeStore()
		deps.Portfolios = memory.NewPortfolioStore()
		deps.Policies = memory.NewPolicyStore()
		deps.Intents = memory.NewIntentStore()
		deps.Audit = memory.NewAuditStore()
	}

	// --- Engine backend: redis for shared state, memory for single-node ---
	if needsRedis(cfg) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		oracle := redis.NewPriceOracle(redisClient, cfg.Oracle.MaxStaleness.Duration)
		deps.Limiter = redis.NewVolumeLimiter(redisClient)
		deps.Locker = redis.NewAccountLock(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Prices = oracle
		deps.PricePoster = oracle
		deps.Requests = redis.NewRequestLimiter(redisClient)
		deps.Health["redis"] = redisClient
	} else {
		book := engine.NewPriceBook(cfg.Oracle.MaxStaleness.Duration)
		deps.Limiter = engine.NewMemoryLimiter()
		deps.Locker = engine.NewKeyedLocker()
		deps.Bus = memory.NewBus()
		deps.Prices = book
		deps.PricePoster = book
	}

	// --- S3 blob storage (only when archival is configured) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			writer, reader, deps.Trades, deps.Audit, deps.Audit, slog.Default(),
		)
	}

	return deps, cleanup, nil
}
