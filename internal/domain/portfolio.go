package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RebalanceFrequency controls when a portfolio becomes due for rebalancing.
type RebalanceFrequency string

const (
	FrequencyManual  RebalanceFrequency = "MANUAL"
	FrequencyHourly  RebalanceFrequency = "HOURLY"
	FrequencyDaily   RebalanceFrequency = "DAILY"
	FrequencyWeekly  RebalanceFrequency = "WEEKLY"
	FrequencyMonthly RebalanceFrequency = "MONTHLY"
)

// Interval returns the elapsed-time threshold for the frequency. The second
// return value is false for MANUAL, which is never auto-due.
func (f RebalanceFrequency) Interval() (time.Duration, bool) {
	switch f {
	case FrequencyHourly:
		return time.Hour, true
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	case FrequencyMonthly:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ParseFrequency converts a case-insensitive frequency name.
func ParseFrequency(s string) (RebalanceFrequency, error) {
	switch RebalanceFrequency(s) {
	case FrequencyManual, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return RebalanceFrequency(s), nil
	}
	return "", fmt.Errorf("%w: unknown rebalance frequency %q", ErrInvalidAllocation, s)
}

// Portfolio is an account's target allocation across a set of tokens.
// Tokens and TargetBps are parallel lists; targets are basis points summing
// to exactly 10000 at creation time.
type Portfolio struct {
	ID                 int64              `json:"id"`
	Owner              common.Address     `json:"owner"`
	Name               string             `json:"name"`
	Tokens             []common.Address   `json:"tokens"`
	TargetBps          []int64            `json:"target_bps"`
	TotalValueAtLast   *big.Int           `json:"total_value_at_last_rebalance"`
	LastRebalanceAt    time.Time          `json:"last_rebalance_at"`
	IsActive           bool               `json:"is_active"`
	RebalanceFrequency RebalanceFrequency `json:"rebalance_frequency"`
	CreatedAt          time.Time          `json:"created_at"`
}

// maxPortfolioTokens bounds the token list length at creation.
const maxPortfolioTokens = 20

// ValidateAllocation checks the creation-time invariants: parallel lists,
// 1-20 unique tokens, and targets summing to exactly 10000 bps with no
// rounding slack.
func ValidateAllocation(tokens []common.Address, targetBps []int64) error {
	if len(tokens) == 0 || len(tokens) > maxPortfolioTokens {
		return fmt.Errorf("%w: token count %d outside [1, %d]", ErrInvalidAllocation, len(tokens), maxPortfolioTokens)
	}
	if len(tokens) != len(targetBps) {
		return fmt.Errorf("%w: %d tokens vs %d targets", ErrInvalidAllocation, len(tokens), len(targetBps))
	}
	seen := make(map[common.Address]bool, len(tokens))
	var sum int64
	for i, tok := range tokens {
		if seen[tok] {
			return fmt.Errorf("%w: duplicate token %s", ErrInvalidAllocation, tok.Hex())
		}
		seen[tok] = true
		if targetBps[i] < 0 {
			return fmt.Errorf("%w: negative target %d bps", ErrInvalidAllocation, targetBps[i])
		}
		sum += targetBps[i]
	}
	if sum != BpsDenom {
		return fmt.Errorf("%w: targets sum to %d bps, want %d", ErrInvalidAllocation, sum, BpsDenom)
	}
	return nil
}

// RebalanceRecommendation is a derived, non-persisted view of one token's
// deviation from its target allocation.
type RebalanceRecommendation struct {
	Token      common.Address `json:"token"`
	CurrentBps int64          `json:"current_bps"`
	TargetBps  int64          `json:"target_bps"`
	ShouldBuy  bool           `json:"should_buy"`
	Priority   int64          `json:"priority"` // |deviation| in bps
}
