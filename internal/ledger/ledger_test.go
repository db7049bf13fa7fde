package ledger

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/store/memory"
)

var (
	acct   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newTestLedger(t *testing.T) (*Ledger, *memory.PositionStore) {
	t.Helper()
	positions := memory.NewPositionStore()
	l := New(positions, memory.NewBus(), memory.NewAuditStore(), slog.New(slog.DiscardHandler))
	l.SetClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return l, positions
}

func TestApplyBuyOpensPosition(t *testing.T) {
	l, positions := newTestLedger(t)
	ctx := context.Background()

	err := l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10))
	require.NoError(t, err)

	pos, err := positions.GetActive(ctx, acct, tokenA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos.ID)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(100)))
	assert.Zero(t, pos.EntryPrice.Cmp(domain.Wad(10)))
	assert.Zero(t, pos.CurrentPrice.Cmp(domain.Wad(10)))
	assert.True(t, pos.IsActive)
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	l, positions := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))
	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(20)))

	pos, err := positions.GetActive(ctx, acct, tokenA)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(200)), "amount = %s", pos.Amount)
	assert.Zero(t, pos.EntryPrice.Cmp(domain.Wad(15)), "entry = %s", pos.EntryPrice)
	assert.Zero(t, pos.CurrentPrice.Cmp(domain.Wad(20)), "mark price tracks last trade")
}

func TestApplyBuyRejectsNonPositive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	err := l.ApplyBuy(ctx, acct, tokenA, big.NewInt(0), domain.Wad(10))
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)

	err = l.ApplyBuy(ctx, acct, tokenA, domain.Wad(10), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)
}

func TestApplySellReducesPosition(t *testing.T) {
	l, positions := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))
	require.NoError(t, l.ApplySell(ctx, acct, tokenA, domain.Wad(40)))

	pos, err := positions.GetActive(ctx, acct, tokenA)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(60)))
	assert.Zero(t, pos.EntryPrice.Cmp(domain.Wad(10)), "entry price unchanged on sell")
	assert.True(t, pos.IsActive)
}

func TestApplySellDeactivatesAtZero(t *testing.T) {
	l, positions := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))
	require.NoError(t, l.ApplySell(ctx, acct, tokenA, domain.Wad(100)))

	_, err := positions.GetActive(ctx, acct, tokenA)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The record survives as history.
	history, err := positions.ListHistory(ctx, acct, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].IsActive)
	assert.Zero(t, history[0].Amount.Sign())
}

func TestApplySellInsufficientLeavesPositionUntouched(t *testing.T) {
	l, positions := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))

	err := l.ApplySell(ctx, acct, tokenA, domain.Wad(150))
	assert.ErrorIs(t, err, domain.ErrInsufficientPosition)

	pos, err := positions.GetActive(ctx, acct, tokenA)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(100)))
	assert.True(t, pos.IsActive)
}

func TestApplySellWithoutPosition(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.ApplySell(context.Background(), acct, tokenA, domain.Wad(5))
	assert.ErrorIs(t, err, domain.ErrInsufficientPosition)
}

func TestHasActive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	ok, err := l.HasActive(ctx, acct, tokenA, domain.Wad(1))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))

	ok, err = l.HasActive(ctx, acct, tokenA, domain.Wad(100))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.HasActive(ctx, acct, tokenA, domain.Wad(101))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPortfolioValue(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))
	require.NoError(t, l.ApplyBuy(ctx, acct, tokenB, domain.Wad(50), domain.Wad(4)))

	total, err := l.PortfolioValue(ctx, acct)
	require.NoError(t, err)
	assert.Zero(t, total.Cmp(domain.Wad(1200)), "100*10 + 50*4 = 1200, got %s", total)
}

func TestCloseRealizesSignedPnL(t *testing.T) {
	l, positions := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))

	// Mark the position down to 8 so the close realizes a loss.
	pos, err := positions.GetActive(ctx, acct, tokenA)
	require.NoError(t, err)
	pos.CurrentPrice = domain.Wad(8)
	require.NoError(t, positions.Update(ctx, pos))

	audit := memory.NewAuditStore()
	l.audit = audit
	closed, err := l.Close(ctx, acct, tokenA, domain.Wad(100))
	require.NoError(t, err)
	assert.Zero(t, closed.Cmp(domain.Wad(100)))

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "position_pnl", entries[0].Event)
	assert.Equal(t, domain.Wad(-200).String(), entries[0].Detail["pnl"], "(8-10)*100 = -200, sign preserved")
}

func TestClosePartial(t *testing.T) {
	l, positions := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))

	closed, err := l.Close(ctx, acct, tokenA, domain.Wad(30))
	require.NoError(t, err)
	assert.Zero(t, closed.Cmp(domain.Wad(30)))

	pos, err := positions.GetActive(ctx, acct, tokenA)
	require.NoError(t, err)
	assert.Zero(t, pos.Amount.Cmp(domain.Wad(70)))
	assert.True(t, pos.IsActive)
}

func TestCloseMoreThanHeldClosesEverything(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyBuy(ctx, acct, tokenA, domain.Wad(100), domain.Wad(10)))

	closed, err := l.Close(ctx, acct, tokenA, domain.Wad(500))
	require.NoError(t, err)
	assert.Zero(t, closed.Cmp(domain.Wad(100)), "close is capped at the held amount")
}

func TestCloseNothingToClose(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Close(context.Background(), acct, tokenA, domain.Wad(1))
	assert.ErrorIs(t, err, domain.ErrNothingToClose)
}
