package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SignalStrength grades a decision from very bearish (-2) to very bullish (+2).
type SignalStrength int

const (
	SignalVeryBearish SignalStrength = -2
	SignalBearish     SignalStrength = -1
	SignalNeutral     SignalStrength = 0
	SignalBullish     SignalStrength = 1
	SignalVeryBullish SignalStrength = 2
)

// DecisionAction is the caller-declared intent behind a trade.
type DecisionAction string

const (
	ActionBuy  DecisionAction = "BUY"
	ActionSell DecisionAction = "SELL"
	ActionHold DecisionAction = "HOLD"
)

// DecisionRecord captures the explainability tuple attached to a trade. The
// confidence and reasoning are supplied by the caller (the AI layer upstream);
// this core only records and broadcasts them.
type DecisionRecord struct {
	ID         string         `json:"id"` // uuid
	TradeID    int64          `json:"trade_id,omitempty"`
	Account    common.Address `json:"account"`
	Token      common.Address `json:"token"`
	Action     DecisionAction `json:"action"`
	Confidence float64        `json:"confidence"` // 0-100
	Strength   SignalStrength `json:"signal_strength"`
	Reasoning  string         `json:"reasoning"`
	Strategy   Strategy       `json:"strategy"`
	CreatedAt  time.Time      `json:"created_at"`
}
