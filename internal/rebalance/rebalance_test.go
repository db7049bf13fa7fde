package rebalance

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/engine"
	"github.com/neuraltrade/tradecore/internal/ledger"
	"github.com/neuraltrade/tradecore/internal/policy"
	"github.com/neuraltrade/tradecore/internal/store/memory"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	holder = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tokenA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	quote  = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

// flatOracle prices every token at 1.0 so values equal amounts.
type flatOracle struct{ mu sync.Mutex }

func (o *flatOracle) GetPrice(ctx context.Context, token common.Address) (*big.Int, time.Time, error) {
	return domain.Wad(1), time.Now(), nil
}

type fixture struct {
	svc       *Service
	ledger    *ledger.Ledger
	positions *memory.PositionStore
	trades    *memory.TradeStore
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	positions := memory.NewPositionStore()
	trades := memory.NewTradeStore()
	audit := memory.NewAuditStore()
	bus := memory.NewBus()
	oracle := &flatOracle{}

	led := ledger.New(positions, bus, audit, logger)
	pol := policy.New(memory.NewPolicyStore(), audit, owner, logger)
	require.NoError(t, pol.Seed(context.Background()))

	admin := engine.NewAdmin(owner, []common.Address{tokenA, tokenB, quote}, nil, false, audit, logger)
	eng := engine.New(led, pol, engine.NewMemoryLimiter(), engine.NewKeyedLocker(), trades, memory.NewIntentStore(), oracle, bus, audit, admin, logger)

	f := &fixture{
		svc:       New(memory.NewPortfolioStore(), positions, oracle, eng, quote, 500, logger),
		ledger:    led,
		positions: positions,
		trades:    trades,
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc.SetClock(func() time.Time { return f.clock })
	eng.SetClock(func() time.Time { return f.clock })
	led.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) fund(t *testing.T, account, token common.Address, units int64) {
	t.Helper()
	require.NoError(t, f.ledger.ApplyBuy(context.Background(), account, token, domain.Wad(units), domain.Wad(1)))
}

func TestCreatePortfolioValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePortfolio(ctx, holder, "bad sum", []common.Address{tokenA, tokenB}, []int64{6_000, 3_000}, domain.FrequencyDaily)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	_, err = f.svc.CreatePortfolio(ctx, holder, "dup", []common.Address{tokenA, tokenA}, []int64{5_000, 5_000}, domain.FrequencyDaily)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	_, err = f.svc.CreatePortfolio(ctx, holder, "no tokens", nil, nil, domain.FrequencyDaily)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	p, err := f.svc.CreatePortfolio(ctx, holder, "60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.True(t, p.IsActive)
}

func TestShouldRebalance(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		freq    domain.RebalanceFrequency
		elapsed time.Duration
		want    bool
	}{
		{"manual never due", domain.FrequencyManual, 365 * 24 * time.Hour, false},
		{"hourly not yet", domain.FrequencyHourly, 59 * time.Minute, false},
		{"hourly due", domain.FrequencyHourly, time.Hour, true},
		{"daily due", domain.FrequencyDaily, 24 * time.Hour, true},
		{"weekly not yet", domain.FrequencyWeekly, 6 * 24 * time.Hour, false},
		{"monthly due", domain.FrequencyMonthly, 30 * 24 * time.Hour, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := domain.Portfolio{RebalanceFrequency: tc.freq, LastRebalanceAt: base}
			assert.Equal(t, tc.want, ShouldRebalance(p, base.Add(tc.elapsed)))
		})
	}

	// Never-rebalanced portfolios are due immediately unless MANUAL.
	assert.True(t, ShouldRebalance(domain.Portfolio{RebalanceFrequency: domain.FrequencyHourly}, base))
	assert.False(t, ShouldRebalance(domain.Portfolio{RebalanceFrequency: domain.FrequencyManual}, base))
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyManual)
	require.NoError(t, err)

	// Holdings drifted to 70/30.
	f.fund(t, holder, tokenA, 7_000)
	f.fund(t, holder, tokenB, 3_000)

	recs, err := f.svc.Recommendations(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, int64(7_000), recs[0].CurrentBps)
	assert.Equal(t, int64(1_000), recs[0].Priority)
	assert.False(t, recs[0].ShouldBuy, "overweight token is sold")

	assert.Equal(t, int64(3_000), recs[1].CurrentBps)
	assert.Equal(t, int64(1_000), recs[1].Priority)
	assert.True(t, recs[1].ShouldBuy, "underweight token is bought")
}

func TestRecommendationsZeroValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "empty", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyManual)
	require.NoError(t, err)

	recs, err := f.svc.Recommendations(ctx, p.ID)
	require.NoError(t, err)
	for _, rec := range recs {
		assert.Zero(t, rec.CurrentBps)
		assert.True(t, rec.ShouldBuy)
	}
}

func TestRebalanceAppliesDriftedTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyManual)
	require.NoError(t, err)

	f.fund(t, holder, tokenA, 7_000)
	f.fund(t, holder, tokenB, 3_000)
	f.fund(t, holder, quote, 5_000)

	applied, err := f.svc.Rebalance(ctx, holder, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	// Drift value is 1000 each way at unit prices: A sold down, B bought up.
	posA, err := f.positions.GetActive(ctx, holder, tokenA)
	require.NoError(t, err)
	assert.Zero(t, posA.Amount.Cmp(domain.Wad(6_000)))

	posB, err := f.positions.GetActive(ctx, holder, tokenB)
	require.NoError(t, err)
	assert.Zero(t, posB.Amount.Cmp(domain.Wad(4_000)))

	updated, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clock, updated.LastRebalanceAt)
	assert.Zero(t, updated.TotalValueAtLast.Cmp(domain.Wad(10_000)))
}

func TestRebalanceZeroValuePortfolioCountsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "empty 60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyManual)
	require.NoError(t, err)

	// No holdings: every drift value truncates to zero, so no corrective
	// trade is submitted and none may be counted.
	applied, err := f.svc.Rebalance(ctx, holder, p.ID, true)
	require.NoError(t, err)
	assert.Zero(t, applied)

	trades, err := f.trades.ListByAccount(ctx, holder, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRebalanceBelowThresholdIsInformational(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyManual)
	require.NoError(t, err)

	// 64/36 drifts only 400 bps, below the 500 bps threshold.
	f.fund(t, holder, tokenA, 6_400)
	f.fund(t, holder, tokenB, 3_600)

	applied, err := f.svc.Rebalance(ctx, holder, p.ID, true)
	require.NoError(t, err)
	assert.Zero(t, applied)

	posA, err := f.positions.GetActive(ctx, holder, tokenA)
	require.NoError(t, err)
	assert.Zero(t, posA.Amount.Cmp(domain.Wad(6_400)), "below-threshold holdings untouched")
}

func TestRebalanceNotDueWithoutForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyDaily)
	require.NoError(t, err)

	f.fund(t, holder, tokenA, 7_000)
	f.fund(t, holder, tokenB, 3_000)
	f.fund(t, holder, quote, 5_000)

	// First pass runs (never rebalanced), second is not due yet.
	_, err = f.svc.Rebalance(ctx, holder, p.ID, false)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	applied, err := f.svc.Rebalance(ctx, holder, p.ID, false)
	require.NoError(t, err)
	assert.Zero(t, applied)

	f.clock = f.clock.Add(24 * time.Hour)
	_, err = f.svc.Rebalance(ctx, holder, p.ID, false)
	require.NoError(t, err)
}

func TestRunDueSweepsOnlyDuePortfolios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due, err := f.svc.CreatePortfolio(ctx, holder, "hourly", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyHourly)
	require.NoError(t, err)
	_, err = f.svc.CreatePortfolio(ctx, holder, "manual", []common.Address{tokenA, tokenB}, []int64{5_000, 5_000}, domain.FrequencyManual)
	require.NoError(t, err)

	f.fund(t, holder, tokenA, 7_000)
	f.fund(t, holder, tokenB, 3_000)
	f.fund(t, holder, quote, 5_000)

	// The hourly portfolio has never rebalanced, so it is due immediately.
	// The manual one is never auto-due.
	ran, err := f.svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	updated, err := f.svc.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clock, updated.LastRebalanceAt)

	// Nothing is due right after the sweep.
	ran, err = f.svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)
}

func TestRebalanceInactivePortfolio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyManual)
	require.NoError(t, err)

	p.IsActive = false
	require.NoError(t, f.svc.portfolios.Update(ctx, p))

	_, err = f.svc.Rebalance(ctx, holder, p.ID, true)
	assert.ErrorIs(t, err, domain.ErrPortfolioInactive)
}

func TestRebalanceUnauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePortfolio(ctx, holder, "60/40", []common.Address{tokenA, tokenB}, []int64{6_000, 4_000}, domain.FrequencyManual)
	require.NoError(t, err)

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	_, err = f.svc.Rebalance(ctx, stranger, p.ID, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
