// Package policy manages strategy trading limits at two scopes: process-wide
// defaults per strategy variant and per-account overrides. An enabled
// override supersedes the default entirely.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// Service resolves and mutates strategy configurations. Mutations require
// the owner capability; resolution is open to any caller.
type Service struct {
	store  domain.PolicyStore
	audit  domain.AuditStore
	owner  common.Address
	logger *slog.Logger
}

// New creates a policy Service. owner is the only identity allowed to change
// defaults and overrides.
func New(store domain.PolicyStore, audit domain.AuditStore, owner common.Address, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		audit:  audit,
		owner:  owner,
		logger: logger.With(slog.String("component", "policy")),
	}
}

// seedDefaults returns the initial limits per strategy. Values are stop-loss
// and take-profit in bps; trade-amount bounds are in token wad units.
func seedDefaults() map[domain.Strategy]domain.StrategyConfig {
	return map[domain.Strategy]domain.StrategyConfig{
		domain.StrategyGrid: {
			Enabled:          true,
			MaxPositionSize:  domain.Wad(10_000),
			StopLossBps:      1_000,
			TakeProfitBps:    2_000,
			DailyVolumeLimit: domain.Wad(100_000),
			MinTradeAmount:   domain.Wad(10),
			MaxTradeAmount:   domain.Wad(5_000),
		},
		domain.StrategyDCA: {
			Enabled:          true,
			MaxPositionSize:  domain.Wad(50_000),
			StopLossBps:      0,
			TakeProfitBps:    5_000,
			DailyVolumeLimit: domain.Wad(100_000),
			MinTradeAmount:   domain.Wad(10),
			MaxTradeAmount:   domain.Wad(10_000),
		},
		domain.StrategyMomentum: {
			Enabled:          true,
			MaxPositionSize:  domain.Wad(20_000),
			StopLossBps:      500,
			TakeProfitBps:    1_500,
			DailyVolumeLimit: domain.Wad(200_000),
			MinTradeAmount:   domain.Wad(500),
			MaxTradeAmount:   domain.Wad(20_000),
		},
		domain.StrategyArbitrage: {
			Enabled:          true,
			MaxPositionSize:  domain.Wad(30_000),
			StopLossBps:      100,
			TakeProfitBps:    300,
			DailyVolumeLimit: domain.Wad(500_000),
			MinTradeAmount:   domain.Wad(100),
			MaxTradeAmount:   domain.Wad(30_000),
		},
		domain.StrategyLPFarming: {
			Enabled:          true,
			MaxPositionSize:  domain.Wad(40_000),
			StopLossBps:      2_000,
			TakeProfitBps:    10_000,
			DailyVolumeLimit: domain.Wad(100_000),
			MinTradeAmount:   domain.Wad(100),
			MaxTradeAmount:   domain.Wad(40_000),
		},
		domain.StrategyAIPredictive: {
			Enabled:          true,
			MaxPositionSize:  domain.Wad(15_000),
			StopLossBps:      800,
			TakeProfitBps:    1_600,
			DailyVolumeLimit: domain.Wad(150_000),
			MinTradeAmount:   domain.Wad(50),
			MaxTradeAmount:   domain.Wad(15_000),
		},
	}
}

// Seed writes the initial default config for every strategy that has none
// yet. Existing rows are never overwritten, so operator changes survive
// restarts.
func (s *Service) Seed(ctx context.Context) error {
	seeds := seedDefaults()
	for _, strategy := range domain.Strategies {
		_, err := s.store.GetDefault(ctx, strategy)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("policy: read default for %s: %w", strategy, err)
		}
		if err := s.store.SetDefault(ctx, strategy, seeds[strategy]); err != nil {
			return fmt.Errorf("policy: seed default for %s: %w", strategy, err)
		}
		s.logger.InfoContext(ctx, "seeded strategy default", slog.String("strategy", string(strategy)))
	}
	return nil
}

// SetDefault replaces the process-wide default config for a strategy. Only
// the owner may call it.
func (s *Service) SetDefault(ctx context.Context, caller common.Address, strategy domain.Strategy, cfg domain.StrategyConfig) error {
	if caller != s.owner {
		return fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller.Hex())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := domain.ParseStrategy(string(strategy)); err != nil {
		return err
	}
	if err := s.store.SetDefault(ctx, strategy, cfg); err != nil {
		return fmt.Errorf("policy: set default: %w", err)
	}
	s.auditChange(ctx, "policy_default_updated", map[string]any{
		"strategy": string(strategy),
		"caller":   caller.Hex(),
		"enabled":  cfg.Enabled,
	})
	return nil
}

// SetAccountOverride replaces an account's override config. Only the owner
// may call it.
func (s *Service) SetAccountOverride(ctx context.Context, caller, account common.Address, cfg domain.StrategyConfig) error {
	if caller != s.owner {
		return fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller.Hex())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.store.SetOverride(ctx, account, cfg); err != nil {
		return fmt.Errorf("policy: set override: %w", err)
	}
	s.auditChange(ctx, "policy_override_updated", map[string]any{
		"account": account.Hex(),
		"caller":  caller.Hex(),
		"enabled": cfg.Enabled,
	})
	return nil
}

// Resolve returns the effective config for an account trading under a
// strategy. An enabled account override supersedes the strategy default
// wholesale; it is never merged field by field. When neither scope yields an
// enabled config, ErrStrategyDisabled is returned.
func (s *Service) Resolve(ctx context.Context, account common.Address, strategy domain.Strategy) (domain.StrategyConfig, error) {
	override, err := s.store.GetOverride(ctx, account)
	switch {
	case err == nil && override.Enabled:
		return override, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.StrategyConfig{}, fmt.Errorf("policy: get override: %w", err)
	}

	def, err := s.store.GetDefault(ctx, strategy)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StrategyConfig{}, fmt.Errorf("%w: no config for strategy %s", domain.ErrStrategyDisabled, strategy)
	}
	if err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("policy: get default: %w", err)
	}
	if !def.Enabled {
		return domain.StrategyConfig{}, fmt.Errorf("%w: %s", domain.ErrStrategyDisabled, strategy)
	}
	return def, nil
}

// Defaults returns every stored strategy default.
func (s *Service) Defaults(ctx context.Context) (map[domain.Strategy]domain.StrategyConfig, error) {
	defaults, err := s.store.ListDefaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: list defaults: %w", err)
	}
	return defaults, nil
}

// CheckAmount verifies a trade amount against the config's min/max bounds.
func CheckAmount(cfg domain.StrategyConfig, amount *big.Int) error {
	if cfg.MinTradeAmount != nil && amount.Cmp(cfg.MinTradeAmount) < 0 {
		return fmt.Errorf("%w: amount %s below minimum %s", domain.ErrAmountOutOfRange, amount, cfg.MinTradeAmount)
	}
	if cfg.MaxTradeAmount != nil && amount.Cmp(cfg.MaxTradeAmount) > 0 {
		return fmt.Errorf("%w: amount %s above maximum %s", domain.ErrAmountOutOfRange, amount, cfg.MaxTradeAmount)
	}
	return nil
}

func (s *Service) auditChange(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
