package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Strategy names a trading policy with its own risk limits.
type Strategy string

const (
	StrategyGrid         Strategy = "GRID"
	StrategyDCA          Strategy = "DCA"
	StrategyMomentum     Strategy = "MOMENTUM"
	StrategyArbitrage    Strategy = "ARBITRAGE"
	StrategyLPFarming    Strategy = "LP_FARMING"
	StrategyAIPredictive Strategy = "AI_PREDICTIVE"
)

// Strategies lists every known strategy variant in declaration order.
var Strategies = []Strategy{
	StrategyGrid,
	StrategyDCA,
	StrategyMomentum,
	StrategyArbitrage,
	StrategyLPFarming,
	StrategyAIPredictive,
}

// ParseStrategy converts a case-insensitive strategy name into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	name := Strategy(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Strategies {
		if name == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, s)
}

// StrategyConfig holds the trading limits for one strategy scope. A scope is
// either a process-wide default for a Strategy variant or a per-account
// override; an enabled override supersedes the default entirely, never
// field-by-field.
type StrategyConfig struct {
	Enabled          bool     `json:"enabled"`
	MaxPositionSize  *big.Int `json:"max_position_size"`
	StopLossBps      int64    `json:"stop_loss_bps"`
	TakeProfitBps    int64    `json:"take_profit_bps"`
	DailyVolumeLimit *big.Int `json:"daily_volume_limit"`
	MinTradeAmount   *big.Int `json:"min_trade_amount"`
	MaxTradeAmount   *big.Int `json:"max_trade_amount"`
}

// Validate enforces the configuration bounds: stop loss at most 50%, take
// profit at most 100%, and a positive max position size.
func (c StrategyConfig) Validate() error {
	if c.StopLossBps < 0 || c.StopLossBps > 5_000 {
		return fmt.Errorf("%w: stop loss %d bps outside [0, 5000]", ErrInvalidConfig, c.StopLossBps)
	}
	if c.TakeProfitBps < 0 || c.TakeProfitBps > 10_000 {
		return fmt.Errorf("%w: take profit %d bps outside [0, 10000]", ErrInvalidConfig, c.TakeProfitBps)
	}
	if c.MaxPositionSize == nil || c.MaxPositionSize.Sign() <= 0 {
		return fmt.Errorf("%w: max position size must be positive", ErrInvalidConfig)
	}
	return nil
}
