package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeType classifies the intent behind a trade log entry.
type TradeType string

const (
	TradeTypeBuy             TradeType = "BUY"
	TradeTypeSell            TradeType = "SELL"
	TradeTypeSwap            TradeType = "SWAP"
	TradeTypeArbitrage       TradeType = "ARBITRAGE"
	TradeTypeLiquidityAdd    TradeType = "LIQUIDITY_ADD"
	TradeTypeLiquidityRemove TradeType = "LIQUIDITY_REMOVE"
)

// TradeStatus tracks the trade lifecycle.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusExecuted  TradeStatus = "EXECUTED"
	TradeStatusFailed    TradeStatus = "FAILED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// Trade is one entry in the append-only trade log. IDs are monotonic and
// 1-based; a written trade is never mutated.
type Trade struct {
	ID           int64          `json:"id"`
	Account      common.Address `json:"account"`
	InputToken   common.Address `json:"input_token"`
	OutputToken  common.Address `json:"output_token"`
	InputAmount  *big.Int       `json:"input_amount"`
	OutputAmount *big.Int       `json:"output_amount"`
	Timestamp    time.Time      `json:"timestamp"`
	Type         TradeType      `json:"type"`
	Status       TradeStatus    `json:"status"`
	Strategy     Strategy       `json:"strategy"`
	Reasoning    string         `json:"reasoning"`
}
