package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IntentKind discriminates scheduled-strategy intents.
type IntentKind string

const (
	IntentGrid IntentKind = "GRID"
	IntentDCA  IntentKind = "DCA"
)

// GridParams parameterizes a grid-trading intent. Order placement itself
// belongs to the external market-access layer; this core only validates and
// registers the grid.
type GridParams struct {
	BaseToken      common.Address `json:"base_token"`
	QuoteToken     common.Address `json:"quote_token"`
	GridCount      int            `json:"grid_count"`
	GridSpacingBps int64          `json:"grid_spacing_bps"`
	LowerBound     *big.Int       `json:"lower_bound"`
	UpperBound     *big.Int       `json:"upper_bound"`
}

// Validate enforces the grid bounds: 1-50 levels, spacing at most 1000 bps,
// and a strictly increasing price band.
func (p GridParams) Validate() error {
	if p.GridCount < 1 || p.GridCount > 50 {
		return fmt.Errorf("%w: grid count %d outside [1, 50]", ErrInvalidIntent, p.GridCount)
	}
	if p.GridSpacingBps <= 0 || p.GridSpacingBps > 1_000 {
		return fmt.Errorf("%w: grid spacing %d bps outside (0, 1000]", ErrInvalidIntent, p.GridSpacingBps)
	}
	if p.LowerBound == nil || p.UpperBound == nil || p.LowerBound.Sign() <= 0 || p.LowerBound.Cmp(p.UpperBound) >= 0 {
		return fmt.Errorf("%w: grid bounds must satisfy 0 < lower < upper", ErrInvalidIntent)
	}
	if p.BaseToken == p.QuoteToken {
		return fmt.Errorf("%w: base and quote token must differ", ErrInvalidIntent)
	}
	return nil
}

// DCAParams parameterizes a dollar-cost-averaging intent.
type DCAParams struct {
	Token            common.Address `json:"token"`
	AmountPerBuy     *big.Int       `json:"amount_per_buy"`
	FrequencySeconds int64          `json:"frequency_seconds"`
	TotalPurchases   int            `json:"total_purchases"`
}

// Validate enforces the DCA bounds: at least hourly frequency and 1-365
// purchases.
func (p DCAParams) Validate() error {
	if p.AmountPerBuy == nil || p.AmountPerBuy.Sign() <= 0 {
		return fmt.Errorf("%w: DCA amount must be positive", ErrInvalidIntent)
	}
	if p.FrequencySeconds < 3_600 {
		return fmt.Errorf("%w: DCA frequency %ds below 1h minimum", ErrInvalidIntent, p.FrequencySeconds)
	}
	if p.TotalPurchases < 1 || p.TotalPurchases > 365 {
		return fmt.Errorf("%w: purchase count %d outside [1, 365]", ErrInvalidIntent, p.TotalPurchases)
	}
	return nil
}

// ScheduledIntent is a registered grid or DCA parameter set awaiting an
// external scheduler. Exactly one of Grid / DCA is set, matching Kind.
type ScheduledIntent struct {
	ID        int64          `json:"id"`
	Account   common.Address `json:"account"`
	Kind      IntentKind     `json:"kind"`
	Grid      *GridParams    `json:"grid,omitempty"`
	DCA       *DCAParams     `json:"dca,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	IsActive  bool           `json:"is_active"`
}
