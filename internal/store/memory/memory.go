// Package memory implements the domain store interfaces with in-process
// maps and slices. It backs the standalone operating mode and the test
// suite; semantics (ordering, id assignment, error values) match the
// Postgres implementations.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// ---------------------------------------------------------------------------
// PositionStore
// ---------------------------------------------------------------------------

// PositionStore implements domain.PositionStore in memory.
type PositionStore struct {
	mu     sync.RWMutex
	rows   []domain.Position
	nextID int64
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{nextID: 1}
}

func clonePosition(p domain.Position) domain.Position {
	out := p
	if p.Amount != nil {
		out.Amount = new(big.Int).Set(p.Amount)
	}
	if p.EntryPrice != nil {
		out.EntryPrice = new(big.Int).Set(p.EntryPrice)
	}
	if p.CurrentPrice != nil {
		out.CurrentPrice = new(big.Int).Set(p.CurrentPrice)
	}
	return out
}

// Create inserts a new position and returns its assigned id.
func (s *PositionStore) Create(ctx context.Context, pos domain.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos.ID = s.nextID
	s.nextID++
	s.rows = append(s.rows, clonePosition(pos))
	return pos.ID, nil
}

// Update replaces the stored position with the same id.
func (s *PositionStore) Update(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == pos.ID {
			s.rows[i] = clonePosition(pos)
			return nil
		}
	}
	return domain.ErrNotFound
}

// GetActive returns the active position for (account, token).
func (s *PositionStore) GetActive(ctx context.Context, account, token common.Address) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.rows {
		if s.rows[i].IsActive && s.rows[i].Account == account && s.rows[i].Token == token {
			return clonePosition(s.rows[i]), nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

// ListActive returns the account's active positions in insertion order.
func (s *PositionStore) ListActive(ctx context.Context, account common.Address) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for i := range s.rows {
		if s.rows[i].IsActive && s.rows[i].Account == account {
			out = append(out, clonePosition(s.rows[i]))
		}
	}
	return out, nil
}

// ListActiveByToken returns the account's active positions in one token, in
// insertion order.
func (s *PositionStore) ListActiveByToken(ctx context.Context, account, token common.Address) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for i := range s.rows {
		if s.rows[i].IsActive && s.rows[i].Account == account && s.rows[i].Token == token {
			out = append(out, clonePosition(s.rows[i]))
		}
	}
	return out, nil
}

// ListHistory returns all of the account's positions, newest first.
func (s *PositionStore) ListHistory(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for i := range s.rows {
		if s.rows[i].Account != account {
			continue
		}
		if opts.Since != nil && s.rows[i].OpenedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && s.rows[i].OpenedAt.After(*opts.Until) {
			continue
		}
		out = append(out, clonePosition(s.rows[i]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return paginate(out, opts), nil
}

// ---------------------------------------------------------------------------
// TradeStore
// ---------------------------------------------------------------------------

// TradeStore implements domain.TradeStore in memory. Trade ids are monotonic
// and 1-based.
type TradeStore struct {
	mu   sync.RWMutex
	rows []domain.Trade
}

// NewTradeStore creates an empty in-memory trade log.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

func cloneTrade(t domain.Trade) domain.Trade {
	out := t
	if t.InputAmount != nil {
		out.InputAmount = new(big.Int).Set(t.InputAmount)
	}
	if t.OutputAmount != nil {
		out.OutputAmount = new(big.Int).Set(t.OutputAmount)
	}
	return out
}

// Append writes a new trade log entry and returns its id.
func (s *TradeStore) Append(ctx context.Context, trade domain.Trade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade.ID = int64(len(s.rows)) + 1
	s.rows = append(s.rows, cloneTrade(trade))
	return trade.ID, nil
}

// GetByID retrieves a trade by its id.
func (s *TradeStore) GetByID(ctx context.Context, id int64) (domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.rows)) {
		return domain.Trade{}, domain.ErrNotFound
	}
	return cloneTrade(s.rows[id-1]), nil
}

// ListByAccount returns the account's trades, newest first.
func (s *TradeStore) ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Account != account {
			continue
		}
		if opts.Since != nil && s.rows[i].Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && s.rows[i].Timestamp.After(*opts.Until) {
			continue
		}
		out = append(out, cloneTrade(s.rows[i]))
	}
	return paginate(out, opts), nil
}

// ListBefore returns all trades with a timestamp strictly before the cutoff.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for i := range s.rows {
		if s.rows[i].Timestamp.Before(before) {
			out = append(out, cloneTrade(s.rows[i]))
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// PortfolioStore
// ---------------------------------------------------------------------------

// PortfolioStore implements domain.PortfolioStore in memory.
type PortfolioStore struct {
	mu     sync.RWMutex
	rows   map[int64]domain.Portfolio
	nextID int64
}

// NewPortfolioStore creates an empty in-memory portfolio store.
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{rows: make(map[int64]domain.Portfolio), nextID: 1}
}

func clonePortfolio(p domain.Portfolio) domain.Portfolio {
	out := p
	out.Tokens = append([]common.Address(nil), p.Tokens...)
	out.TargetBps = append([]int64(nil), p.TargetBps...)
	if p.TotalValueAtLast != nil {
		out.TotalValueAtLast = new(big.Int).Set(p.TotalValueAtLast)
	}
	return out
}

// Create inserts a portfolio and returns its assigned id.
func (s *PortfolioStore) Create(ctx context.Context, p domain.Portfolio) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID
	s.nextID++
	s.rows[p.ID] = clonePortfolio(p)
	return p.ID, nil
}

// GetByID retrieves a portfolio by id.
func (s *PortfolioStore) GetByID(ctx context.Context, id int64) (domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[id]
	if !ok {
		return domain.Portfolio{}, domain.ErrNotFound
	}
	return clonePortfolio(p), nil
}

// Update replaces the stored portfolio with the same id.
func (s *PortfolioStore) Update(ctx context.Context, p domain.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[p.ID] = clonePortfolio(p)
	return nil
}

// ListByOwner returns the owner's portfolios ordered by id.
func (s *PortfolioStore) ListByOwner(ctx context.Context, owner common.Address) ([]domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Portfolio
	for _, p := range s.rows {
		if p.Owner == owner {
			out = append(out, clonePortfolio(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListActive returns every active portfolio ordered by id.
func (s *PortfolioStore) ListActive(ctx context.Context) ([]domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Portfolio
	for _, p := range s.rows {
		if p.IsActive {
			out = append(out, clonePortfolio(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------------------
// PolicyStore
// ---------------------------------------------------------------------------

// PolicyStore implements domain.PolicyStore in memory.
type PolicyStore struct {
	mu        sync.RWMutex
	defaults  map[domain.Strategy]domain.StrategyConfig
	overrides map[common.Address]domain.StrategyConfig
}

// NewPolicyStore creates an empty in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		defaults:  make(map[domain.Strategy]domain.StrategyConfig),
		overrides: make(map[common.Address]domain.StrategyConfig),
	}
}

func cloneConfig(c domain.StrategyConfig) domain.StrategyConfig {
	out := c
	if c.MaxPositionSize != nil {
		out.MaxPositionSize = new(big.Int).Set(c.MaxPositionSize)
	}
	if c.DailyVolumeLimit != nil {
		out.DailyVolumeLimit = new(big.Int).Set(c.DailyVolumeLimit)
	}
	if c.MinTradeAmount != nil {
		out.MinTradeAmount = new(big.Int).Set(c.MinTradeAmount)
	}
	if c.MaxTradeAmount != nil {
		out.MaxTradeAmount = new(big.Int).Set(c.MaxTradeAmount)
	}
	return out
}

// GetDefault returns the default config for a strategy.
func (s *PolicyStore) GetDefault(ctx context.Context, strategy domain.Strategy) (domain.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.defaults[strategy]
	if !ok {
		return domain.StrategyConfig{}, domain.ErrNotFound
	}
	return cloneConfig(cfg), nil
}

// SetDefault stores the default config for a strategy.
func (s *PolicyStore) SetDefault(ctx context.Context, strategy domain.Strategy, cfg domain.StrategyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[strategy] = cloneConfig(cfg)
	return nil
}

// GetOverride returns the account's override config.
func (s *PolicyStore) GetOverride(ctx context.Context, account common.Address) (domain.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.overrides[account]
	if !ok {
		return domain.StrategyConfig{}, domain.ErrNotFound
	}
	return cloneConfig(cfg), nil
}

// SetOverride stores the account's override config.
func (s *PolicyStore) SetOverride(ctx context.Context, account common.Address, cfg domain.StrategyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[account] = cloneConfig(cfg)
	return nil
}

// ListDefaults returns all stored strategy defaults.
func (s *PolicyStore) ListDefaults(ctx context.Context) (map[domain.Strategy]domain.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Strategy]domain.StrategyConfig, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = cloneConfig(v)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// IntentStore
// ---------------------------------------------------------------------------

// IntentStore implements domain.IntentStore in memory.
type IntentStore struct {
	mu     sync.RWMutex
	rows   []domain.ScheduledIntent
	nextID int64
}

// NewIntentStore creates an empty in-memory intent store.
func NewIntentStore() *IntentStore {
	return &IntentStore{nextID: 1}
}

// Create registers a scheduled intent and returns its id.
func (s *IntentStore) Create(ctx context.Context, intent domain.ScheduledIntent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent.ID = s.nextID
	s.nextID++
	s.rows = append(s.rows, intent)
	return intent.ID, nil
}

// ListActive returns the account's active intents in registration order.
func (s *IntentStore) ListActive(ctx context.Context, account common.Address) ([]domain.ScheduledIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduledIntent
	for i := range s.rows {
		if s.rows[i].IsActive && s.rows[i].Account == account {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

// Deactivate marks an intent inactive.
func (s *IntentStore) Deactivate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].IsActive = false
			return nil
		}
	}
	return domain.ErrNotFound
}

// ---------------------------------------------------------------------------
// AuditStore
// ---------------------------------------------------------------------------

// AuditStore implements domain.AuditStore in memory.
type AuditStore struct {
	mu   sync.RWMutex
	rows []domain.AuditEntry
}

// NewAuditStore creates an empty in-memory audit log.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, domain.AuditEntry{
		ID:        int64(len(s.rows)) + 1,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns audit entries, newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0; i-- {
		out = append(out, s.rows[i])
	}
	return paginate(out, opts), nil
}

// ListBefore returns entries created strictly before the cutoff.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for i := range s.rows {
		if s.rows[i].CreatedAt.Before(before) {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func paginate[T any](rows []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}
	return rows
}

// Compile-time interface checks.
var (
	_ domain.PositionStore  = (*PositionStore)(nil)
	_ domain.TradeStore     = (*TradeStore)(nil)
	_ domain.PortfolioStore = (*PortfolioStore)(nil)
	_ domain.PolicyStore    = (*PolicyStore)(nil)
	_ domain.IntentStore    = (*IntentStore)(nil)
	_ domain.AuditStore     = (*AuditStore)(nil)
)
