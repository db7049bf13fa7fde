package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. ListActive returns positions in insertion
// order (opened_at ascending, then id) — that ordering is the documented
// tie-break policy for partial closes.
type PositionStore interface {
	Create(ctx context.Context, pos Position) (int64, error)
	Update(ctx context.Context, pos Position) error
	GetActive(ctx context.Context, account, token common.Address) (Position, error)
	ListActive(ctx context.Context, account common.Address) ([]Position, error)
	ListActiveByToken(ctx context.Context, account, token common.Address) ([]Position, error)
	ListHistory(ctx context.Context, account common.Address, opts ListOpts) ([]Position, error)
}

// TradeStore persists the append-only trade log. Append assigns the monotonic
// 1-based trade id; entries are never mutated afterwards.
type TradeStore interface {
	Append(ctx context.Context, trade Trade) (int64, error)
	GetByID(ctx context.Context, id int64) (Trade, error)
	ListByAccount(ctx context.Context, account common.Address, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// PortfolioStore persists portfolio definitions.
type PortfolioStore interface {
	Create(ctx context.Context, p Portfolio) (int64, error)
	GetByID(ctx context.Context, id int64) (Portfolio, error)
	Update(ctx context.Context, p Portfolio) error
	ListByOwner(ctx context.Context, owner common.Address) ([]Portfolio, error)
	ListActive(ctx context.Context) ([]Portfolio, error)
}

// PolicyStore persists strategy configurations for both scopes: per-strategy
// defaults and per-account overrides.
type PolicyStore interface {
	GetDefault(ctx context.Context, strategy Strategy) (StrategyConfig, error)
	SetDefault(ctx context.Context, strategy Strategy, cfg StrategyConfig) error
	GetOverride(ctx context.Context, account common.Address) (StrategyConfig, error)
	SetOverride(ctx context.Context, account common.Address, cfg StrategyConfig) error
	ListDefaults(ctx context.Context) (map[Strategy]StrategyConfig, error)
}

// IntentStore persists scheduled grid/DCA intents.
type IntentStore interface {
	Create(ctx context.Context, intent ScheduledIntent) (int64, error)
	ListActive(ctx context.Context, account common.Address) ([]ScheduledIntent, error)
	Deactivate(ctx context.Context, id int64) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
