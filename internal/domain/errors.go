package domain

import "errors"

// Sentinel errors returned by the ledger, engine, policy store, and
// rebalancer. Callers classify failures with errors.Is; the HTTP layer maps
// them onto status codes.
var (
	// Validation
	ErrInvalidTrade      = errors.New("invalid trade parameters")
	ErrInvalidConfig     = errors.New("invalid strategy config")
	ErrInvalidAllocation = errors.New("invalid portfolio allocation")
	ErrInvalidIntent     = errors.New("invalid intent parameters")

	// Authorization
	ErrUnauthorized = errors.New("unauthorized")

	// Policy
	ErrStrategyDisabled    = errors.New("strategy disabled")
	ErrAmountOutOfRange    = errors.New("trade amount out of configured range")
	ErrDailyVolumeExceeded = errors.New("daily volume limit exceeded")
	ErrTokenNotApproved    = errors.New("token not approved for trading")
	ErrSlippageExceeded    = errors.New("output below minimum acceptable amount")

	// State
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrNothingToClose       = errors.New("no active position to close")
	ErrNotFound             = errors.New("not found")
	ErrPaused               = errors.New("trading is paused")
	ErrPortfolioInactive    = errors.New("portfolio inactive")

	// External
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrLockHeld         = errors.New("lock already held")
)
