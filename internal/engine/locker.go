package engine

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// KeyedLocker serializes mutations per account inside one process. Each
// account maps to a one-slot channel acting as a mutex that respects context
// cancellation while waiting.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[common.Address]chan struct{}
}

// NewKeyedLocker creates an empty in-process account locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[common.Address]chan struct{})}
}

// Acquire blocks until the account's slot is free or ctx is done. The
// returned release function is idempotent.
func (k *KeyedLocker) Acquire(ctx context.Context, account common.Address) (func(), error) {
	k.mu.Lock()
	ch, ok := k.locks[account]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[account] = ch
	}
	k.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-ch })
	}
	return release, nil
}

var _ domain.AccountLocker = (*KeyedLocker)(nil)
