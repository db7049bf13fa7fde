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

// secondsPerDay fixes the UTC day bucket: floor(unix / 86400).
const secondsPerDay = 86_400

type volumeBucket struct {
	day  int64
	used *big.Int
}

// MemoryLimiter is the single-node volume limiter. One accumulator per
// account, reset on day rollover. Multi-instance deployments use the Redis
// limiter instead.
type MemoryLimiter struct {
	mu       sync.Mutex
	accounts map[common.Address]*volumeBucket
}

// NewMemoryLimiter creates an empty in-process volume limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{accounts: make(map[common.Address]*volumeBucket)}
}

// CheckAndConsume adds amount to the account's daily accumulator unless that
// would breach dailyLimit. A day rollover zeroes the accumulator before the
// check, and the reset sticks even when the check then fails. A nil
// dailyLimit means unlimited.
func (m *MemoryLimiter) CheckAndConsume(ctx context.Context, account common.Address, amount, dailyLimit *big.Int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := now.Unix() / secondsPerDay
	b, ok := m.accounts[account]
	if !ok {
		b = &volumeBucket{day: day, used: new(big.Int)}
		m.accounts[account] = b
	}
	if b.day != day {
		b.day = day
		b.used.SetInt64(0)
	}

	next := new(big.Int).Add(b.used, amount)
	if dailyLimit != nil && next.Cmp(dailyLimit) > 0 {
		return fmt.Errorf("%w: %s used + %s requested > %s limit",
			domain.ErrDailyVolumeExceeded, b.used, amount, dailyLimit)
	}
	b.used.Set(next)
	return nil
}

// Refund subtracts a previously consumed amount from the account's current
// day bucket. Refunds against an already rolled-over day are dropped; the
// accumulator never goes negative.
func (m *MemoryLimiter) Refund(ctx context.Context, account common.Address, amount *big.Int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := now.Unix() / secondsPerDay
	b, ok := m.accounts[account]
	if !ok || b.day != day {
		return nil
	}
	b.used.Sub(b.used, amount)
	if b.used.Sign() < 0 {
		b.used.SetInt64(0)
	}
	return nil
}

var _ domain.VolumeLimiter = (*MemoryLimiter)(nil)
