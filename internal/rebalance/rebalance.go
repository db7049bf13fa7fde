// Package rebalance maintains portfolio allocations by comparing each
// token's share of total value against its target and routing corrective
// trades through a configured quote token.
package rebalance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/engine"
)

// rebalanceStrategy is the policy scope rebalancing trades execute under.
const rebalanceStrategy = domain.StrategyDCA

// Service owns portfolio definitions and drives corrective trades through
// the execution engine, so rebalancing obeys the same policy, volume, and
// approval gates as any other trade.
type Service struct {
	portfolios domain.PortfolioStore
	positions  domain.PositionStore
	prices     domain.PriceSource
	engine     *engine.Engine
	quote      common.Address
	threshold  int64 // drift in bps that makes a recommendation actionable
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a rebalance Service. quote is the settlement token corrective
// trades route through; threshold is the actionable drift in basis points.
func New(
	portfolios domain.PortfolioStore,
	positions domain.PositionStore,
	prices domain.PriceSource,
	eng *engine.Engine,
	quote common.Address,
	threshold int64,
	logger *slog.Logger,
) *Service {
	return &Service{
		portfolios: portfolios,
		positions:  positions,
		prices:     prices,
		engine:     eng,
		quote:      quote,
		threshold:  threshold,
		logger:     logger.With(slog.String("component", "rebalance")),
		now:        time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreatePortfolio validates the allocation and persists a new active
// portfolio for owner.
func (s *Service) CreatePortfolio(ctx context.Context, owner common.Address, name string, tokens []common.Address, targetBps []int64, freq domain.RebalanceFrequency) (domain.Portfolio, error) {
	if err := domain.ValidateAllocation(tokens, targetBps); err != nil {
		return domain.Portfolio{}, err
	}
	if _, err := domain.ParseFrequency(string(freq)); err != nil {
		return domain.Portfolio{}, err
	}

	p := domain.Portfolio{
		Owner:              owner,
		Name:               name,
		Tokens:             tokens,
		TargetBps:          targetBps,
		TotalValueAtLast:   new(big.Int),
		IsActive:           true,
		RebalanceFrequency: freq,
		CreatedAt:          s.now().UTC(),
	}
	id, err := s.portfolios.Create(ctx, p)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("rebalance: create portfolio: %w", err)
	}
	p.ID = id
	s.logger.InfoContext(ctx, "portfolio created",
		slog.Int64("portfolio_id", id),
		slog.String("owner", owner.Hex()),
		slog.Int("tokens", len(tokens)),
	)
	return p, nil
}

// Get returns a portfolio by id.
func (s *Service) Get(ctx context.Context, id int64) (domain.Portfolio, error) {
	return s.portfolios.GetByID(ctx, id)
}

// ListByOwner returns the owner's portfolios.
func (s *Service) ListByOwner(ctx context.Context, owner common.Address) ([]domain.Portfolio, error) {
	return s.portfolios.ListByOwner(ctx, owner)
}

// ShouldRebalance reports whether the portfolio's frequency makes it due at
// now. MANUAL portfolios are never auto-due; a portfolio that has never
// rebalanced is due immediately.
func ShouldRebalance(p domain.Portfolio, now time.Time) bool {
	interval, ok := p.RebalanceFrequency.Interval()
	if !ok {
		return false
	}
	if p.LastRebalanceAt.IsZero() {
		return true
	}
	return now.Sub(p.LastRebalanceAt) >= interval
}

// RunDue rebalances every active portfolio whose frequency makes it due.
// Each portfolio runs under its own owner's authority. Failures are logged
// and do not stop the sweep; the count of rebalanced portfolios is returned.
func (s *Service) RunDue(ctx context.Context) (int, error) {
	portfolios, err := s.portfolios.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebalance: list active portfolios: %w", err)
	}

	now := s.now().UTC()
	ran := 0
	for _, p := range portfolios {
		if !ShouldRebalance(p, now) {
			continue
		}
		if _, err := s.Rebalance(ctx, p.Owner, p.ID, false); err != nil {
			s.logger.WarnContext(ctx, "scheduled rebalance failed",
				slog.Int64("portfolio_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		ran++
	}
	return ran, nil
}

// Recommendations computes each portfolio token's deviation from target.
// currentBps is tokenValue*10000/total, truncated; zero total yields zero
// current shares across the board.
func (s *Service) Recommendations(ctx context.Context, portfolioID int64) ([]domain.RebalanceRecommendation, error) {
	p, err := s.portfolios.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("rebalance: get portfolio: %w", err)
	}
	values, total, err := s.tokenValues(ctx, p)
	if err != nil {
		return nil, err
	}
	return recommend(p, values, total), nil
}

// Rebalance brings the portfolio back toward its targets. Unless force is
// set it no-ops when the portfolio is not yet due. Only recommendations with
// drift at or above the configured threshold become trades; each routes
// through the quote token and counts toward the returned applied total.
func (s *Service) Rebalance(ctx context.Context, caller common.Address, portfolioID int64, force bool) (int, error) {
	p, err := s.portfolios.GetByID(ctx, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("rebalance: get portfolio: %w", err)
	}
	if !s.engine.Admin().CanTrade(caller, p.Owner) {
		return 0, fmt.Errorf("%w: %s may not rebalance portfolio %d", domain.ErrUnauthorized, caller.Hex(), portfolioID)
	}
	if !p.IsActive {
		return 0, fmt.Errorf("%w: portfolio %d", domain.ErrPortfolioInactive, portfolioID)
	}
	now := s.now().UTC()
	if !force && !ShouldRebalance(p, now) {
		return 0, nil
	}

	values, total, err := s.tokenValues(ctx, p)
	if err != nil {
		return 0, err
	}
	recs := recommend(p, values, total)

	applied := 0
	for _, rec := range recs {
		if rec.Priority < s.threshold || rec.Token == s.quote {
			continue
		}
		submitted, err := s.applyRecommendation(ctx, caller, p, rec, total)
		if err != nil {
			s.logger.WarnContext(ctx, "rebalance trade failed",
				slog.Int64("portfolio_id", portfolioID),
				slog.String("token", rec.Token.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if submitted {
			applied++
		}
	}

	p.LastRebalanceAt = now
	p.TotalValueAtLast = total
	if err := s.portfolios.Update(ctx, p); err != nil {
		return applied, fmt.Errorf("rebalance: update portfolio: %w", err)
	}

	s.logger.InfoContext(ctx, "portfolio rebalanced",
		slog.Int64("portfolio_id", portfolioID),
		slog.Int("applied", applied),
		slog.String("total_value", total.String()),
	)
	return applied, nil
}

// applyRecommendation converts one drift into a corrective trade. Overweight
// tokens sell into the quote token; underweight tokens buy from it. It
// reports whether a trade was actually submitted; drifts whose value or
// input amount truncates to zero are no-ops.
func (s *Service) applyRecommendation(ctx context.Context, caller common.Address, p domain.Portfolio, rec domain.RebalanceRecommendation, total *big.Int) (bool, error) {
	// Drift value in quote terms: total * |deviation| / 10000.
	driftValue := new(big.Int).Mul(total, big.NewInt(rec.Priority))
	driftValue.Quo(driftValue, big.NewInt(domain.BpsDenom))
	if driftValue.Sign() == 0 {
		return false, nil
	}

	var input, output common.Address
	if rec.ShouldBuy {
		input, output = s.quote, rec.Token
	} else {
		input, output = rec.Token, s.quote
	}

	price, _, err := s.prices.GetPrice(ctx, input)
	if err != nil {
		return false, fmt.Errorf("rebalance: price for %s: %w", input.Hex(), err)
	}
	if price == nil || price.Sign() <= 0 {
		return false, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, input.Hex())
	}
	inputAmount := domain.WDiv(driftValue, price)
	if inputAmount.Sign() == 0 {
		return false, nil
	}

	_, err = s.engine.ExecuteTrade(ctx, caller, engine.TradeRequest{
		Account:     p.Owner,
		InputToken:  input,
		OutputToken: output,
		InputAmount: inputAmount,
		Strategy:    rebalanceStrategy,
		Reasoning:   fmt.Sprintf("rebalance portfolio %d: %s drift %d bps", p.ID, rec.Token.Hex(), rec.Priority),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// tokenValues returns each portfolio token's active-position value and the
// portfolio total. Tokens without an active position count as zero.
func (s *Service) tokenValues(ctx context.Context, p domain.Portfolio) (map[common.Address]*big.Int, *big.Int, error) {
	values := make(map[common.Address]*big.Int, len(p.Tokens))
	total := new(big.Int)
	for _, token := range p.Tokens {
		pos, err := s.positions.GetActive(ctx, p.Owner, token)
		if errors.Is(err, domain.ErrNotFound) {
			values[token] = new(big.Int)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("rebalance: position for %s: %w", token.Hex(), err)
		}
		v := pos.Value()
		values[token] = v
		total.Add(total, v)
	}
	return values, total, nil
}

// recommend derives the per-token drift view in portfolio token order.
func recommend(p domain.Portfolio, values map[common.Address]*big.Int, total *big.Int) []domain.RebalanceRecommendation {
	recs := make([]domain.RebalanceRecommendation, 0, len(p.Tokens))
	for i, token := range p.Tokens {
		var currentBps int64
		if total.Sign() > 0 {
			cur := new(big.Int).Mul(values[token], big.NewInt(domain.BpsDenom))
			cur.Quo(cur, total)
			currentBps = cur.Int64()
		}
		deviation := currentBps - p.TargetBps[i]
		priority := deviation
		if priority < 0 {
			priority = -priority
		}
		recs = append(recs, domain.RebalanceRecommendation{
			Token:      token,
			CurrentBps: currentBps,
			TargetBps:  p.TargetBps[i],
			ShouldBuy:  deviation < 0,
			Priority:   priority,
		})
	}
	return recs
}
