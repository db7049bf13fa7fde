package policy

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/store/memory"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	trader   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.NewPolicyStore(), memory.NewAuditStore(), owner, slog.New(slog.DiscardHandler))
}

func TestSeedInstallsAllStrategies(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))

	defaults, err := s.Defaults(ctx)
	require.NoError(t, err)
	assert.Len(t, defaults, len(domain.Strategies))

	momentum := defaults[domain.StrategyMomentum]
	assert.True(t, momentum.Enabled)
	assert.Zero(t, momentum.MinTradeAmount.Cmp(domain.Wad(500)))
	assert.Zero(t, momentum.MaxTradeAmount.Cmp(domain.Wad(20_000)))
	assert.Zero(t, momentum.DailyVolumeLimit.Cmp(domain.Wad(200_000)))
}

func TestSeedDoesNotOverwrite(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	custom := seedDefaults()[domain.StrategyGrid]
	custom.StopLossBps = 750
	require.NoError(t, s.SetDefault(ctx, owner, domain.StrategyGrid, custom))

	require.NoError(t, s.Seed(ctx))

	got, err := s.Resolve(ctx, trader, domain.StrategyGrid)
	require.NoError(t, err)
	assert.Equal(t, int64(750), got.StopLossBps)
}

func TestSetDefaultRequiresOwner(t *testing.T) {
	s := newTestService(t)
	cfg := seedDefaults()[domain.StrategyGrid]

	err := s.SetDefault(context.Background(), stranger, domain.StrategyGrid, cfg)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSetDefaultValidatesConfig(t *testing.T) {
	s := newTestService(t)
	cfg := seedDefaults()[domain.StrategyGrid]
	cfg.StopLossBps = 6_000

	err := s.SetDefault(context.Background(), owner, domain.StrategyGrid, cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestResolveOverrideWinsWhole(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	override := domain.StrategyConfig{
		Enabled:         true,
		MaxPositionSize: domain.Wad(99),
		StopLossBps:     100,
		TakeProfitBps:   200,
		MinTradeAmount:  domain.Wad(1),
		MaxTradeAmount:  domain.Wad(42),
	}
	require.NoError(t, s.SetAccountOverride(ctx, owner, trader, override))

	got, err := s.Resolve(ctx, trader, domain.StrategyMomentum)
	require.NoError(t, err)
	// The override replaces the momentum default entirely, including fields
	// the default populated and the override left nil.
	assert.Zero(t, got.MaxTradeAmount.Cmp(domain.Wad(42)))
	assert.Nil(t, got.DailyVolumeLimit)
}

func TestResolveDisabledOverrideFallsBack(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	override := seedDefaults()[domain.StrategyGrid]
	override.Enabled = false
	require.NoError(t, s.SetAccountOverride(ctx, owner, trader, override))

	got, err := s.Resolve(ctx, trader, domain.StrategyMomentum)
	require.NoError(t, err)
	assert.Zero(t, got.MinTradeAmount.Cmp(domain.Wad(500)), "falls back to momentum default")
}

func TestResolveDisabledStrategy(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	disabled := seedDefaults()[domain.StrategyArbitrage]
	disabled.Enabled = false
	require.NoError(t, s.SetDefault(ctx, owner, domain.StrategyArbitrage, disabled))

	_, err := s.Resolve(ctx, trader, domain.StrategyArbitrage)
	assert.ErrorIs(t, err, domain.ErrStrategyDisabled)
}

func TestResolveUnknownStrategy(t *testing.T) {
	s := newTestService(t)
	_, err := s.Resolve(context.Background(), trader, domain.Strategy("SCALPING"))
	assert.ErrorIs(t, err, domain.ErrStrategyDisabled)
}

func TestCheckAmount(t *testing.T) {
	cfg := seedDefaults()[domain.StrategyMomentum]

	assert.ErrorIs(t, CheckAmount(cfg, domain.Wad(100)), domain.ErrAmountOutOfRange)
	assert.NoError(t, CheckAmount(cfg, domain.Wad(500)))
	assert.NoError(t, CheckAmount(cfg, domain.Wad(20_000)))
	assert.ErrorIs(t, CheckAmount(cfg, domain.Wad(20_001)), domain.ErrAmountOutOfRange)
}
