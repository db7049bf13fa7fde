package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is an account's holding of one token with a weighted-average cost
// basis. At most one position per (account, token) is active at a time;
// closed positions are deactivated but retained as history.
type Position struct {
	ID           int64          `json:"id"`
	Account      common.Address `json:"account"`
	Token        common.Address `json:"token"`
	Amount       *big.Int       `json:"amount"`
	EntryPrice   *big.Int       `json:"entry_price"` // weighted average, wad
	CurrentPrice *big.Int       `json:"current_price"`
	OpenedAt     time.Time      `json:"opened_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	IsActive     bool           `json:"is_active"`
}

// Value returns the current mark value of the position: amount * currentPrice
// in the wad domain.
func (p Position) Value() *big.Int {
	if p.Amount == nil || p.CurrentPrice == nil {
		return new(big.Int)
	}
	return WMul(p.Amount, p.CurrentPrice)
}

// UnrealizedPnL returns the signed unrealized profit or loss:
// (currentPrice - entryPrice) * amount in the wad domain. Losses are
// negative, never floored at zero.
func (p Position) UnrealizedPnL() *big.Int {
	if p.Amount == nil || p.EntryPrice == nil || p.CurrentPrice == nil {
		return new(big.Int)
	}
	delta := new(big.Int).Sub(p.CurrentPrice, p.EntryPrice)
	return WMul(delta, p.Amount)
}
