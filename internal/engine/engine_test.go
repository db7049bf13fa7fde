package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/ledger"
	"github.com/neuraltrade/tradecore/internal/policy"
	"github.com/neuraltrade/tradecore/internal/store/memory"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	trader  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	outcast = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	usdc    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	shady   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// stubOracle serves fixed prices; tokens without an entry are unavailable.
type stubOracle struct {
	mu     sync.Mutex
	prices map[common.Address]*big.Int
}

func newStubOracle() *stubOracle {
	return &stubOracle{prices: map[common.Address]*big.Int{
		usdc: domain.Wad(1),
		weth: domain.Wad(2000),
	}}
}

func (o *stubOracle) set(token common.Address, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[token] = price
}

func (o *stubOracle) GetPrice(ctx context.Context, token common.Address) (*big.Int, time.Time, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[token]
	if !ok || p == nil {
		return nil, time.Time{}, domain.ErrPriceUnavailable
	}
	return new(big.Int).Set(p), time.Now(), nil
}

type fixture struct {
	engine    *Engine
	ledger    *ledger.Ledger
	positions *memory.PositionStore
	trades    *memory.TradeStore
	policy    *policy.Service
	oracle    *stubOracle
	limiter   *MemoryLimiter
	audit     *memory.AuditStore
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	positions := memory.NewPositionStore()
	trades := memory.NewTradeStore()
	audit := memory.NewAuditStore()
	bus := memory.NewBus()

	led := ledger.New(positions, bus, audit, logger)
	pol := policy.New(memory.NewPolicyStore(), audit, owner, logger)
	require.NoError(t, pol.Seed(context.Background()))

	oracle := newStubOracle()
	limiter := NewMemoryLimiter()
	admin := NewAdmin(owner, []common.Address{usdc, weth}, nil, false, audit, logger)

	f := &fixture{
		engine:    New(led, pol, limiter, NewKeyedLocker(), trades, memory.NewIntentStore(), oracle, bus, audit, admin, logger),
		ledger:    led,
		positions: positions,
		trades:    trades,
		policy:    pol,
		oracle:    oracle,
		limiter:   limiter,
		audit:     audit,
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine.SetClock(func() time.Time { return f.clock })
	led.SetClock(func() time.Time { return f.clock })
	return f
}

// fund seeds an active position directly so trades have an input leg.
func (f *fixture) fund(t *testing.T, account, token common.Address, units int64, priceUnits int64) {
	t.Helper()
	require.NoError(t, f.ledger.ApplyBuy(context.Background(), account, token, domain.Wad(units), domain.Wad(priceUnits)))
}

func momentumSwap(units int64) TradeRequest {
	return TradeRequest{
		Account:     trader,
		InputToken:  usdc,
		OutputToken: weth,
		InputAmount: domain.Wad(units),
		Strategy:    domain.StrategyMomentum,
		Reasoning:   "breakout above resistance",
		Confidence:  82,
	}
}

func TestExecuteTradeHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 10_000, 1)

	id, err := f.engine.ExecuteTrade(ctx, trader, momentumSwap(2_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "trade ids are 1-based")

	// 2000 USDC at 1 buys 1 WETH at 2000.
	pos, err := f.positions.GetActive(ctx, trader, weth)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(1)))
	assert.Zero(t, pos.EntryPrice.Cmp(domain.Wad(2000)))

	remaining, err := f.positions.GetActive(ctx, trader, usdc)
	require.NoError(t, err)
	assert.Zero(t, remaining.Amount.Cmp(domain.Wad(8_000)))

	trade, err := f.trades.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusExecuted, trade.Status)
	assert.Equal(t, domain.TradeTypeSwap, trade.Type)
}

func TestExecuteTradeUnauthorized(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ExecuteTrade(context.Background(), outcast, momentumSwap(1_000))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestExecuteTradeOwnerMayTradeForAnyAccount(t *testing.T) {
	f := newFixture(t)
	f.fund(t, trader, usdc, 10_000, 1)
	_, err := f.engine.ExecuteTrade(context.Background(), owner, momentumSwap(1_000))
	assert.NoError(t, err)
}

func TestExecuteTradePaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 10_000, 1)
	require.NoError(t, f.engine.Admin().SetPaused(ctx, owner, true))

	_, err := f.engine.ExecuteTrade(ctx, trader, momentumSwap(1_000))
	assert.ErrorIs(t, err, domain.ErrPaused)

	require.NoError(t, f.engine.Admin().SetPaused(ctx, owner, false))
	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(1_000))
	assert.NoError(t, err)
}

func TestExecuteTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := momentumSwap(1_000)
	req.OutputToken = usdc
	_, err := f.engine.ExecuteTrade(ctx, trader, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)

	req = momentumSwap(0)
	_, err = f.engine.ExecuteTrade(ctx, trader, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)
}

func TestExecuteTradeUnapprovedToken(t *testing.T) {
	f := newFixture(t)
	req := momentumSwap(1_000)
	req.OutputToken = shady
	_, err := f.engine.ExecuteTrade(context.Background(), trader, req)
	assert.ErrorIs(t, err, domain.ErrTokenNotApproved)
}

func TestExecuteTradeAmountRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 50_000, 1)

	// Momentum minimum is 500: 100 fails, 500 passes.
	_, err := f.engine.ExecuteTrade(ctx, trader, momentumSwap(100))
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(500))
	assert.NoError(t, err)

	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(20_001))
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
}

func TestExecuteTradeDailyVolumeLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 500_000, 1)

	// Override the trader to a 100k daily limit.
	cfg := domain.StrategyConfig{
		Enabled:          true,
		MaxPositionSize:  domain.Wad(1_000_000),
		DailyVolumeLimit: domain.Wad(100_000),
		MinTradeAmount:   domain.Wad(1),
		MaxTradeAmount:   domain.Wad(80_000),
	}
	require.NoError(t, f.policy.SetAccountOverride(ctx, owner, trader, cfg))

	_, err := f.engine.ExecuteTrade(ctx, trader, momentumSwap(60_000))
	require.NoError(t, err)

	// 60000 + 60000 breaches the 100000 limit.
	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(60_000))
	assert.ErrorIs(t, err, domain.ErrDailyVolumeExceeded)

	// 40000 still fits exactly.
	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(40_000))
	assert.NoError(t, err)

	// Next UTC day the accumulator resets.
	f.clock = f.clock.Add(24 * time.Hour)
	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(60_000))
	assert.NoError(t, err)
}

func TestExecuteTradePriceFailureRefundsVolume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 500_000, 1)

	cfg := domain.StrategyConfig{
		Enabled:          true,
		MaxPositionSize:  domain.Wad(1_000_000),
		DailyVolumeLimit: domain.Wad(100_000),
		MinTradeAmount:   domain.Wad(1),
		MaxTradeAmount:   domain.Wad(100_000),
	}
	require.NoError(t, f.policy.SetAccountOverride(ctx, owner, trader, cfg))

	f.oracle.set(weth, nil)
	req := momentumSwap(90_000)
	req.OutputToken = weth
	_, err := f.engine.ExecuteTrade(ctx, trader, req)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	// The failed trade's volume was refunded, so the full limit is free.
	f.oracle.set(weth, domain.Wad(2000))
	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(100_000))
	assert.NoError(t, err)
}

func TestExecuteTradeSlippage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 10_000, 1)

	req := momentumSwap(2_000)
	req.MinOutputAmount = domain.Wad(2) // 2000 USDC buys only 1 WETH
	_, err := f.engine.ExecuteTrade(ctx, trader, req)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestExecuteTradeZeroOutputRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 10_000, 1)

	// A near-worthless input against an expensive output truncates the
	// computed output to zero; the trade must fail before it is logged.
	f.oracle.set(usdc, big.NewInt(1))
	_, err := f.engine.ExecuteTrade(ctx, trader, momentumSwap(500))
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)

	_, err = f.trades.GetByID(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	pos, err := f.positions.GetActive(ctx, trader, usdc)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(10_000)))
}

func TestExecuteTradeMaxPositionSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 100_000, 1)

	// Momentum caps the position at 20000 in value. The first trade leaves
	// 7.5 WETH worth 15000; doubling it would breach the cap.
	_, err := f.engine.ExecuteTrade(ctx, trader, momentumSwap(15_000))
	require.NoError(t, err)

	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(15_000))
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	pos, err := f.positions.GetActive(ctx, trader, weth)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(new(big.Int).Quo(domain.Wad(15), big.NewInt(2))))

	// Growing to exactly the cap is allowed.
	_, err = f.engine.ExecuteTrade(ctx, trader, momentumSwap(5_000))
	assert.NoError(t, err)
}

func TestExecuteTradeInsufficientInputPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 400, 1)

	_, err := f.engine.ExecuteTrade(ctx, trader, momentumSwap(500))
	assert.ErrorIs(t, err, domain.ErrInsufficientPosition)

	// No half-applied deltas: the USDC position is untouched and no WETH
	// position appeared.
	pos, err := f.positions.GetActive(ctx, trader, usdc)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(400)))
	_, err = f.positions.GetActive(ctx, trader, weth)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteTradeErrorPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Unauthorized caller with an invalid request: authorization is checked
	// first.
	req := momentumSwap(0)
	_, err := f.engine.ExecuteTrade(ctx, outcast, req)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Paused beats validation.
	require.NoError(t, f.engine.Admin().SetPaused(ctx, owner, true))
	_, err = f.engine.ExecuteTrade(ctx, trader, req)
	assert.ErrorIs(t, err, domain.ErrPaused)
	require.NoError(t, f.engine.Admin().SetPaused(ctx, owner, false))

	// Validation beats token approval.
	req = momentumSwap(0)
	req.OutputToken = shady
	_, err = f.engine.ExecuteTrade(ctx, trader, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)
}

func TestExecuteTradeConcurrentSameAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, usdc, 100_000, 1)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.ExecuteTrade(ctx, trader, momentumSwap(2_000))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "trade %d", i)
	}

	// All 10 swaps applied exactly once: 20000 USDC spent, 10 WETH bought.
	pos, err := f.positions.GetActive(ctx, trader, usdc)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(80_000)))
	wethPos, err := f.positions.GetActive(ctx, trader, weth)
	require.NoError(t, err)
	assert.Zero(t, wethPos.Amount.Cmp(domain.Wad(10)))
}

func TestClosePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, trader, weth, 5, 2000)

	closed, err := f.engine.ClosePosition(ctx, trader, trader, weth, domain.Wad(2))
	require.NoError(t, err)
	assert.Zero(t, closed.Cmp(domain.Wad(2)))

	_, err = f.engine.ClosePosition(ctx, outcast, trader, weth, domain.Wad(1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.engine.ClosePosition(ctx, trader, trader, usdc, domain.Wad(1))
	assert.ErrorIs(t, err, domain.ErrNothingToClose)
}

func TestExecuteGridAndDCA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grid := domain.GridParams{
		BaseToken:      weth,
		QuoteToken:     usdc,
		GridCount:      10,
		GridSpacingBps: 100,
		LowerBound:     domain.Wad(1500),
		UpperBound:     domain.Wad(2500),
	}
	id, err := f.engine.ExecuteGrid(ctx, trader, trader, grid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	grid.GridCount = 51
	_, err = f.engine.ExecuteGrid(ctx, trader, trader, grid)
	assert.ErrorIs(t, err, domain.ErrInvalidIntent)

	dca := domain.DCAParams{
		Token:            weth,
		AmountPerBuy:     domain.Wad(100),
		FrequencySeconds: 3_600,
		TotalPurchases:   30,
	}
	id, err = f.engine.ExecuteDCA(ctx, trader, trader, dca)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	dca.FrequencySeconds = 60
	_, err = f.engine.ExecuteDCA(ctx, trader, trader, dca)
	assert.ErrorIs(t, err, domain.ErrInvalidIntent)

	intents, err := f.engine.ListIntents(ctx, trader)
	require.NoError(t, err)
	assert.Len(t, intents, 2)

	require.NoError(t, f.engine.CancelIntent(ctx, trader, trader, 1))
	intents, err = f.engine.ListIntents(ctx, trader)
	require.NoError(t, err)
	assert.Len(t, intents, 1)
}

func TestAdminMutationsRequireOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.engine.Admin()

	assert.ErrorIs(t, admin.SetPaused(ctx, trader, true), domain.ErrUnauthorized)
	assert.ErrorIs(t, admin.SetTokenApproval(ctx, trader, shady, true), domain.ErrUnauthorized)
	assert.ErrorIs(t, admin.SetCallerAuthorization(ctx, trader, outcast, true), domain.ErrUnauthorized)

	require.NoError(t, admin.SetTokenApproval(ctx, owner, shady, true))
	assert.True(t, admin.TokenApproved(shady))
	require.NoError(t, admin.SetTokenApproval(ctx, owner, shady, false))
	assert.False(t, admin.TokenApproved(shady))

	require.NoError(t, admin.SetCallerAuthorization(ctx, owner, outcast, true))
	assert.True(t, admin.CanTrade(outcast, trader))
}

func TestMemoryLimiterRolloverIsSticky(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	day1 := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)
	limit := domain.Wad(100)

	require.NoError(t, limiter.CheckAndConsume(ctx, trader, domain.Wad(90), limit, day1))

	// Day 2: the rollover reset happens even though this oversized check
	// fails afterwards.
	err := limiter.CheckAndConsume(ctx, trader, domain.Wad(150), limit, day2)
	assert.ErrorIs(t, err, domain.ErrDailyVolumeExceeded)

	// Proof the reset stuck: the full day-2 budget is available.
	require.NoError(t, limiter.CheckAndConsume(ctx, trader, domain.Wad(100), limit, day2))
}

func TestMemoryLimiterRefund(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limit := domain.Wad(100)

	require.NoError(t, limiter.CheckAndConsume(ctx, trader, domain.Wad(100), limit, now))
	assert.Error(t, limiter.CheckAndConsume(ctx, trader, domain.Wad(1), limit, now))

	require.NoError(t, limiter.Refund(ctx, trader, domain.Wad(40), now))
	require.NoError(t, limiter.CheckAndConsume(ctx, trader, domain.Wad(40), limit, now))

	// Refunds never push the accumulator below zero.
	require.NoError(t, limiter.Refund(ctx, trader, domain.Wad(10_000), now))
	require.NoError(t, limiter.CheckAndConsume(ctx, trader, domain.Wad(100), limit, now))
}

func TestKeyedLockerRespectsContext(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, trader)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, trader)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	release()
	release() // idempotent

	release2, err := locker.Acquire(ctx, trader)
	require.NoError(t, err)
	release2()
}
