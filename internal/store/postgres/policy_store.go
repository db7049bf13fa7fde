package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// PolicyStore implements domain.PolicyStore using PostgreSQL. Each config is
// one JSONB row keyed by scope: "default:<STRATEGY>" for strategy defaults,
// "account:<address>" for per-account overrides.
type PolicyStore struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a new PolicyStore backed by the given connection pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

func defaultScope(strategy domain.Strategy) string {
	return "default:" + string(strategy)
}

func accountScope(account common.Address) string {
	return "account:" + strings.ToLower(account.Hex())
}

func (s *PolicyStore) get(ctx context.Context, scope string) (domain.StrategyConfig, error) {
	const query = `SELECT config_json FROM strategy_configs WHERE scope = $1`

	var configJSON []byte
	err := s.pool.QueryRow(ctx, query, scope).Scan(&configJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StrategyConfig{}, domain.ErrNotFound
		}
		return domain.StrategyConfig{}, fmt.Errorf("postgres: get config %s: %w", scope, err)
	}

	var cfg domain.StrategyConfig
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("postgres: unmarshal config %s: %w", scope, err)
	}
	return cfg, nil
}

func (s *PolicyStore) set(ctx context.Context, scope string, cfg domain.StrategyConfig) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("postgres: marshal config %s: %w", scope, err)
	}

	const query = `
		INSERT INTO strategy_configs (scope, config_json, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (scope) DO UPDATE SET
			config_json = EXCLUDED.config_json,
			updated_at  = NOW()`

	if _, err := s.pool.Exec(ctx, query, scope, configJSON); err != nil {
		return fmt.Errorf("postgres: upsert config %s: %w", scope, err)
	}
	return nil
}

// GetDefault returns the default config for a strategy.
func (s *PolicyStore) GetDefault(ctx context.Context, strategy domain.Strategy) (domain.StrategyConfig, error) {
	return s.get(ctx, defaultScope(strategy))
}

// SetDefault stores the default config for a strategy.
func (s *PolicyStore) SetDefault(ctx context.Context, strategy domain.Strategy, cfg domain.StrategyConfig) error {
	return s.set(ctx, defaultScope(strategy), cfg)
}

// GetOverride returns the account's override config.
func (s *PolicyStore) GetOverride(ctx context.Context, account common.Address) (domain.StrategyConfig, error) {
	return s.get(ctx, accountScope(account))
}

// SetOverride stores the account's override config.
func (s *PolicyStore) SetOverride(ctx context.Context, account common.Address, cfg domain.StrategyConfig) error {
	return s.set(ctx, accountScope(account), cfg)
}

// ListDefaults returns all stored strategy defaults.
func (s *PolicyStore) ListDefaults(ctx context.Context) (map[domain.Strategy]domain.StrategyConfig, error) {
	const query = `SELECT scope, config_json FROM strategy_configs WHERE scope LIKE 'default:%'`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list defaults: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Strategy]domain.StrategyConfig)
	for rows.Next() {
		var scope string
		var configJSON []byte
		if err := rows.Scan(&scope, &configJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan default config: %w", err)
		}
		var cfg domain.StrategyConfig
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal default config %s: %w", scope, err)
		}
		out[domain.Strategy(strings.TrimPrefix(scope, "default:"))] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list defaults rows: %w", err)
	}
	return out, nil
}

var _ domain.PolicyStore = (*PolicyStore)(nil)
