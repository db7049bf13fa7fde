// Package ledger owns per-account, per-token position records and applies
// buy/sell deltas with weighted-average cost-basis accounting. All arithmetic
// stays in the 18-decimal fixed-point integer domain.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// Ledger applies position deltas and answers portfolio queries. Callers are
// responsible for per-account serialization (the execution engine holds the
// account lock around every mutation); the ledger itself only guarantees the
// arithmetic invariants.
type Ledger struct {
	positions domain.PositionStore
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Ledger with all required dependencies.
func New(positions domain.PositionStore, bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: positions,
		bus:       bus,
		audit:     audit,
		logger:    logger.With(slog.String("component", "ledger")),
		now:       time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// ApplyBuy credits amount of token to the account at the given price. When an
// active position exists its entry price is recomputed as the amount-weighted
// average (truncating toward zero); otherwise a new active position opens at
// the trade price. The mark price is refreshed either way.
func (l *Ledger) ApplyBuy(ctx context.Context, account, token common.Address, amount, price *big.Int) error {
	if amount == nil || amount.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: buy amount and price must be positive", domain.ErrInvalidTrade)
	}

	pos, err := l.positions.GetActive(ctx, account, token)
	if errors.Is(err, domain.ErrNotFound) {
		now := l.now().UTC()
		pos = domain.Position{
			Account:      account,
			Token:        token,
			Amount:       new(big.Int).Set(amount),
			EntryPrice:   new(big.Int).Set(price),
			CurrentPrice: new(big.Int).Set(price),
			OpenedAt:     now,
			UpdatedAt:    now,
			IsActive:     true,
		}
		id, createErr := l.positions.Create(ctx, pos)
		if createErr != nil {
			return fmt.Errorf("ledger: create position: %w", createErr)
		}
		pos.ID = id
		l.publish(ctx, "positions", "position_opened", pos)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: get active position: %w", err)
	}

	// entry' = (oldAmount*oldEntry + amount*price) / (oldAmount + amount)
	oldCost := domain.WMul(pos.Amount, pos.EntryPrice)
	newCost := domain.WMul(amount, price)
	total := new(big.Int).Add(pos.Amount, amount)
	pos.EntryPrice = domain.WDiv(new(big.Int).Add(oldCost, newCost), total)
	pos.Amount = total
	pos.CurrentPrice = new(big.Int).Set(price)
	pos.UpdatedAt = l.now().UTC()

	if err := l.positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("ledger: update position: %w", err)
	}
	l.publish(ctx, "positions", "position_increased", pos)
	return nil
}

// ApplySell debits amount of token from the account's active position. The
// position deactivates when its amount reaches zero but the record is
// retained as history. A sell larger than the active amount fails with
// ErrInsufficientPosition and leaves the position untouched.
func (l *Ledger) ApplySell(ctx context.Context, account, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: sell amount must be positive", domain.ErrInvalidTrade)
	}

	pos, err := l.positions.GetActive(ctx, account, token)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: no active %s position for %s", domain.ErrInsufficientPosition, token.Hex(), account.Hex())
	}
	if err != nil {
		return fmt.Errorf("ledger: get active position: %w", err)
	}
	if pos.Amount.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", domain.ErrInsufficientPosition, pos.Amount, amount)
	}

	pos.Amount = new(big.Int).Sub(pos.Amount, amount)
	pos.UpdatedAt = l.now().UTC()
	if pos.Amount.Sign() == 0 {
		pos.IsActive = false
	}

	if err := l.positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("ledger: update position: %w", err)
	}

	if pos.IsActive {
		l.publish(ctx, "positions", "position_reduced", pos)
	} else {
		l.publish(ctx, "positions", "position_closed", pos)
	}
	return nil
}

// HasActive reports whether the account holds an active position in token
// with at least the given amount. The engine uses it to pre-check the sell
// leg of a swap before any delta is applied.
func (l *Ledger) HasActive(ctx context.Context, account, token common.Address, amount *big.Int) (bool, error) {
	pos, err := l.positions.GetActive(ctx, account, token)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: get active position: %w", err)
	}
	return pos.Amount.Cmp(amount) >= 0, nil
}

// ActiveAmount returns the account's active position amount in token, or
// zero when no active position exists.
func (l *Ledger) ActiveAmount(ctx context.Context, account, token common.Address) (*big.Int, error) {
	pos, err := l.positions.GetActive(ctx, account, token)
	if errors.Is(err, domain.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get active position: %w", err)
	}
	return new(big.Int).Set(pos.Amount), nil
}

// ActivePositions returns the account's active positions in insertion order.
func (l *Ledger) ActivePositions(ctx context.Context, account common.Address) ([]domain.Position, error) {
	positions, err := l.positions.ListActive(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("ledger: list active positions: %w", err)
	}
	return positions, nil
}

// PortfolioValue sums amount*currentPrice over the account's active
// positions.
func (l *Ledger) PortfolioValue(ctx context.Context, account common.Address) (*big.Int, error) {
	positions, err := l.positions.ListActive(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("ledger: list active positions: %w", err)
	}
	total := new(big.Int)
	for _, pos := range positions {
		total.Add(total, pos.Value())
	}
	return total, nil
}

// Close closes up to amount of the account's active positions in token,
// scanning in insertion order and partial-closing until the requested amount
// is consumed. A PnL event is emitted per partial close. It returns the
// amount actually closed; ErrNothingToClose when no active position exists.
func (l *Ledger) Close(ctx context.Context, account, token common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: close amount must be positive", domain.ErrInvalidTrade)
	}

	open, err := l.positions.ListActiveByToken(ctx, account, token)
	if err != nil {
		return nil, fmt.Errorf("ledger: list positions to close: %w", err)
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: %s has no active %s position", domain.ErrNothingToClose, account.Hex(), token.Hex())
	}

	remaining := new(big.Int).Set(amount)
	closed := new(big.Int)
	for _, pos := range open {
		if remaining.Sign() == 0 {
			break
		}
		chunk := new(big.Int).Set(remaining)
		if pos.Amount.Cmp(chunk) < 0 {
			chunk.Set(pos.Amount)
		}

		// Realized PnL for the chunk, signed.
		delta := new(big.Int).Sub(pos.CurrentPrice, pos.EntryPrice)
		pnl := domain.WMul(delta, chunk)

		pos.Amount = new(big.Int).Sub(pos.Amount, chunk)
		pos.UpdatedAt = l.now().UTC()
		if pos.Amount.Sign() == 0 {
			pos.IsActive = false
		}
		if err := l.positions.Update(ctx, pos); err != nil {
			return nil, fmt.Errorf("ledger: update position %d: %w", pos.ID, err)
		}

		remaining.Sub(remaining, chunk)
		closed.Add(closed, chunk)

		l.publishPnL(ctx, pos, chunk, pnl)
	}

	l.logger.InfoContext(ctx, "positions closed",
		slog.String("account", account.Hex()),
		slog.String("token", token.Hex()),
		slog.String("closed", closed.String()),
	)
	return closed, nil
}

// publish broadcasts a position lifecycle event on the signal bus; failures
// are logged and do not affect ledger state.
func (l *Ledger) publish(ctx context.Context, channel, event string, pos domain.Position) {
	payload, _ := json.Marshal(map[string]any{
		"event":       event,
		"position_id": pos.ID,
		"account":     pos.Account.Hex(),
		"token":       pos.Token.Hex(),
		"amount":      pos.Amount.String(),
		"entry_price": pos.EntryPrice.String(),
		"is_active":   pos.IsActive,
	})
	if err := l.bus.Publish(ctx, channel, payload); err != nil {
		l.logger.WarnContext(ctx, "publish position event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// publishPnL emits one realized-PnL event for a partial close.
func (l *Ledger) publishPnL(ctx context.Context, pos domain.Position, chunk, pnl *big.Int) {
	payload, _ := json.Marshal(map[string]any{
		"event":       "position_pnl",
		"position_id": pos.ID,
		"account":     pos.Account.Hex(),
		"token":       pos.Token.Hex(),
		"closed":      chunk.String(),
		"pnl":         pnl.String(),
	})
	if err := l.bus.Publish(ctx, "positions", payload); err != nil {
		l.logger.WarnContext(ctx, "publish pnl event failed", slog.String("error", err.Error()))
	}
	if err := l.audit.Log(ctx, "position_pnl", map[string]any{
		"position_id": pos.ID,
		"account":     pos.Account.Hex(),
		"token":       pos.Token.Hex(),
		"closed":      chunk.String(),
		"pnl":         pnl.String(),
	}); err != nil {
		l.logger.WarnContext(ctx, "audit pnl failed", slog.String("error", err.Error()))
	}
}
