package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// PriceBook is the in-process price oracle for single-node deployments.
// Prices arrive through the admin API and age out after maxStaleness.
type PriceBook struct {
	mu           sync.RWMutex
	entries      map[common.Address]priceEntry
	maxStaleness time.Duration
	now          func() time.Time
}

type priceEntry struct {
	price *big.Int
	ts    time.Time
}

// NewPriceBook creates a PriceBook. Prices older than maxStaleness are
// reported as unavailable; zero disables the staleness bound.
func NewPriceBook(maxStaleness time.Duration) *PriceBook {
	return &PriceBook{
		entries:      make(map[common.Address]priceEntry),
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (pb *PriceBook) SetClock(now func() time.Time) { pb.now = now }

// SetPrice stores the latest price and timestamp for a token.
func (pb *PriceBook) SetPrice(_ context.Context, token common.Address, price *big.Int, ts time.Time) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive", domain.ErrInvalidTrade)
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.entries[token] = priceEntry{price: new(big.Int).Set(price), ts: ts}
	return nil
}

// GetPrice returns the latest price and timestamp for a token. Missing or
// stale entries surface as ErrPriceUnavailable.
func (pb *PriceBook) GetPrice(_ context.Context, token common.Address) (*big.Int, time.Time, error) {
	pb.mu.RLock()
	entry, ok := pb.entries[token]
	pb.mu.RUnlock()

	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: no feed for %s", domain.ErrPriceUnavailable, token.Hex())
	}
	if pb.maxStaleness > 0 && pb.now().Sub(entry.ts) > pb.maxStaleness {
		return nil, time.Time{}, fmt.Errorf("%w: %s price is %s old", domain.ErrPriceUnavailable, token.Hex(), pb.now().Sub(entry.ts))
	}
	return new(big.Int).Set(entry.price), entry.ts, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*PriceBook)(nil)
