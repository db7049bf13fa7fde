// Package engine executes strategy-constrained trades against the position
// ledger. Every trade passes the full gate sequence: authorization, pause,
// validation, token approval, policy limits, daily volume, price oracle,
// position sufficiency. Gates are checked in that order so callers see a
// deterministic error for any given failure mix.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/ledger"
	"github.com/neuraltrade/tradecore/internal/policy"
)

// priceLookupTimeout bounds each oracle call so a slow feed cannot stall a
// trade past its usefulness.
const priceLookupTimeout = 2 * time.Second

// TradeRequest carries one trade submission. Confidence and Reasoning come
// from the caller (the AI layer upstream) and are recorded verbatim.
type TradeRequest struct {
	Account         common.Address
	InputToken      common.Address
	OutputToken     common.Address
	InputAmount     *big.Int
	MinOutputAmount *big.Int
	Strategy        domain.Strategy
	Reasoning       string
	Confidence      float64
}

// Engine wires the gate sequence around the ledger.
type Engine struct {
	ledger  *ledger.Ledger
	policy  *policy.Service
	limiter domain.VolumeLimiter
	locker  domain.AccountLocker
	trades  domain.TradeStore
	intents domain.IntentStore
	prices  domain.PriceSource
	bus     domain.SignalBus
	audit   domain.AuditStore
	admin   *Admin
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Engine with all collaborators injected.
func New(
	led *ledger.Ledger,
	pol *policy.Service,
	limiter domain.VolumeLimiter,
	locker domain.AccountLocker,
	trades domain.TradeStore,
	intents domain.IntentStore,
	prices domain.PriceSource,
	bus domain.SignalBus,
	audit domain.AuditStore,
	admin *Admin,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		ledger:  led,
		policy:  pol,
		limiter: limiter,
		locker:  locker,
		trades:  trades,
		intents: intents,
		prices:  prices,
		bus:     bus,
		audit:   audit,
		admin:   admin,
		logger:  logger.With(slog.String("component", "engine")),
		now:     time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Admin exposes the engine's control plane.
func (e *Engine) Admin() *Admin { return e.admin }

// ExecuteTrade runs the full gate sequence and, on success, applies the
// buy/sell position deltas atomically under the account's lock. It returns
// the id of the appended trade log entry.
func (e *Engine) ExecuteTrade(ctx context.Context, caller common.Address, req TradeRequest) (int64, error) {
	if !e.admin.CanTrade(caller, req.Account) {
		return 0, fmt.Errorf("%w: %s may not trade for %s", domain.ErrUnauthorized, caller.Hex(), req.Account.Hex())
	}
	if e.admin.Paused() {
		return 0, domain.ErrPaused
	}
	if req.InputToken == req.OutputToken {
		return 0, fmt.Errorf("%w: input and output token must differ", domain.ErrInvalidTrade)
	}
	if req.InputAmount == nil || req.InputAmount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: input amount must be positive", domain.ErrInvalidTrade)
	}
	if !e.admin.TokenApproved(req.InputToken) {
		return 0, fmt.Errorf("%w: %s", domain.ErrTokenNotApproved, req.InputToken.Hex())
	}
	if !e.admin.TokenApproved(req.OutputToken) {
		return 0, fmt.Errorf("%w: %s", domain.ErrTokenNotApproved, req.OutputToken.Hex())
	}

	cfg, err := e.policy.Resolve(ctx, req.Account, req.Strategy)
	if err != nil {
		return 0, err
	}
	if err := policy.CheckAmount(cfg, req.InputAmount); err != nil {
		return 0, err
	}

	now := e.now().UTC()
	if err := e.limiter.CheckAndConsume(ctx, req.Account, req.InputAmount, cfg.DailyVolumeLimit, now); err != nil {
		return 0, err
	}
	// Volume is consumed from here on; every later failure compensates it.
	fail := func(cause error) (int64, error) {
		if refundErr := e.limiter.Refund(ctx, req.Account, req.InputAmount, now); refundErr != nil {
			e.logger.WarnContext(ctx, "volume refund failed",
				slog.String("account", req.Account.Hex()),
				slog.String("error", refundErr.Error()),
			)
		}
		return 0, cause
	}

	inPrice, outPrice, err := e.lookupPrices(ctx, req.InputToken, req.OutputToken)
	if err != nil {
		return fail(err)
	}

	// outputAmount = inputAmount * inPrice / outPrice, truncated.
	outputAmount := domain.WDiv(domain.WMul(req.InputAmount, inPrice), outPrice)
	if outputAmount.Sign() == 0 {
		return fail(fmt.Errorf("%w: output amount truncates to zero", domain.ErrInvalidTrade))
	}
	if req.MinOutputAmount != nil && outputAmount.Cmp(req.MinOutputAmount) < 0 {
		return fail(fmt.Errorf("%w: computed %s < minimum %s", domain.ErrSlippageExceeded, outputAmount, req.MinOutputAmount))
	}

	release, err := e.locker.Acquire(ctx, req.Account)
	if err != nil {
		return fail(fmt.Errorf("engine: acquire account lock: %w", err))
	}
	defer release()

	// Check the input position before any delta so the buy+sell pair below
	// cannot half-apply.
	ok, err := e.ledger.HasActive(ctx, req.Account, req.InputToken, req.InputAmount)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(fmt.Errorf("%w: need %s of %s", domain.ErrInsufficientPosition, req.InputAmount, req.InputToken.Hex()))
	}

	// The buy leg may not grow the output position past the strategy's size
	// cap, valued at the oracle price.
	if cfg.MaxPositionSize != nil {
		held, err := e.ledger.ActiveAmount(ctx, req.Account, req.OutputToken)
		if err != nil {
			return fail(err)
		}
		postValue := domain.WMul(new(big.Int).Add(held, outputAmount), outPrice)
		if postValue.Cmp(cfg.MaxPositionSize) > 0 {
			return fail(fmt.Errorf("%w: position value %s would exceed limit %s", domain.ErrAmountOutOfRange, postValue, cfg.MaxPositionSize))
		}
	}

	tradeID, err := e.trades.Append(ctx, domain.Trade{
		Account:      req.Account,
		InputToken:   req.InputToken,
		OutputToken:  req.OutputToken,
		InputAmount:  new(big.Int).Set(req.InputAmount),
		OutputAmount: outputAmount,
		Timestamp:    now,
		Type:         domain.TradeTypeSwap,
		Status:       domain.TradeStatusExecuted,
		Strategy:     req.Strategy,
		Reasoning:    req.Reasoning,
	})
	if err != nil {
		return fail(fmt.Errorf("engine: append trade: %w", err))
	}

	if err := e.ledger.ApplyBuy(ctx, req.Account, req.OutputToken, outputAmount, outPrice); err != nil {
		return fail(fmt.Errorf("engine: apply buy leg: %w", err))
	}
	if err := e.ledger.ApplySell(ctx, req.Account, req.InputToken, req.InputAmount); err != nil {
		return fail(fmt.Errorf("engine: apply sell leg: %w", err))
	}

	e.emitDecision(ctx, domain.DecisionRecord{
		ID:         uuid.NewString(),
		TradeID:    tradeID,
		Account:    req.Account,
		Token:      req.OutputToken,
		Action:     domain.ActionBuy,
		Confidence: req.Confidence,
		Strength:   strengthFromConfidence(req.Confidence),
		Reasoning:  req.Reasoning,
		Strategy:   req.Strategy,
		CreatedAt:  now,
	})

	e.logger.InfoContext(ctx, "trade executed",
		slog.Int64("trade_id", tradeID),
		slog.String("account", req.Account.Hex()),
		slog.String("strategy", string(req.Strategy)),
		slog.String("input_amount", req.InputAmount.String()),
		slog.String("output_amount", outputAmount.String()),
	)
	return tradeID, nil
}

// ClosePosition closes up to amount of the account's position in token and
// appends a SELL entry to the trade log. The pause switch does not block it:
// pausing halts new exposure, not risk reduction.
func (e *Engine) ClosePosition(ctx context.Context, caller, account, token common.Address, amount *big.Int) (*big.Int, error) {
	if !e.admin.CanTrade(caller, account) {
		return nil, fmt.Errorf("%w: %s may not trade for %s", domain.ErrUnauthorized, caller.Hex(), account.Hex())
	}

	release, err := e.locker.Acquire(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire account lock: %w", err)
	}
	defer release()

	closed, err := e.ledger.Close(ctx, account, token, amount)
	if err != nil {
		return nil, err
	}

	if _, err := e.trades.Append(ctx, domain.Trade{
		Account:     account,
		InputToken:  token,
		InputAmount: new(big.Int).Set(closed),
		Timestamp:   e.now().UTC(),
		Type:        domain.TradeTypeSell,
		Status:      domain.TradeStatusExecuted,
		Reasoning:   "position close",
	}); err != nil {
		e.logger.WarnContext(ctx, "close trade log append failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
	}
	return closed, nil
}

// lookupPrices fetches both oracle prices under one bounded deadline.
func (e *Engine) lookupPrices(ctx context.Context, input, output common.Address) (*big.Int, *big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, priceLookupTimeout)
	defer cancel()

	inPrice, _, err := e.prices.GetPrice(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: input token %s: %v", domain.ErrPriceUnavailable, input.Hex(), err)
	}
	outPrice, _, err := e.prices.GetPrice(ctx, output)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: output token %s: %v", domain.ErrPriceUnavailable, output.Hex(), err)
	}
	if inPrice == nil || inPrice.Sign() <= 0 || outPrice == nil || outPrice.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: non-positive oracle price", domain.ErrPriceUnavailable)
	}
	return inPrice, outPrice, nil
}

// strengthFromConfidence grades the caller's 0-100 confidence onto the
// -2..+2 signal scale used by decision records.
func strengthFromConfidence(confidence float64) domain.SignalStrength {
	switch {
	case confidence >= 90:
		return domain.SignalVeryBullish
	case confidence >= 70:
		return domain.SignalBullish
	case confidence >= 40:
		return domain.SignalNeutral
	case confidence >= 20:
		return domain.SignalBearish
	default:
		return domain.SignalVeryBearish
	}
}

// emitDecision broadcasts and audits one decision record. Failures are
// logged; the executed trade stands regardless.
func (e *Engine) emitDecision(ctx context.Context, rec domain.DecisionRecord) {
	payload, _ := json.Marshal(rec)
	if err := e.bus.Publish(ctx, "decisions", payload); err != nil {
		e.logger.WarnContext(ctx, "publish decision failed", slog.String("error", err.Error()))
	}
	if err := e.audit.Log(ctx, "trade_decision", map[string]any{
		"decision_id": rec.ID,
		"trade_id":    rec.TradeID,
		"account":     rec.Account.Hex(),
		"action":      string(rec.Action),
		"confidence":  rec.Confidence,
		"strategy":    string(rec.Strategy),
	}); err != nil {
		e.logger.WarnContext(ctx, "audit decision failed", slog.String("error", err.Error()))
	}
}
