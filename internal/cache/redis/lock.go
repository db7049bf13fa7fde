package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token. This prevents one holder from accidentally releasing another
// holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// lockTTL caps how long a crashed holder can wedge an account.
const lockTTL = 30 * time.Second

// lockPollInterval is how often a waiting acquirer retries SETNX.
const lockPollInterval = 25 * time.Millisecond

// AccountLock implements domain.AccountLocker across processes using Redis
// SETNX with a TTL and a Lua-based conditional unlock. Acquire polls until
// the slot frees or the context is done.
type AccountLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewAccountLock creates an AccountLock backed by the given Client.
func NewAccountLock(c *Client) *AccountLock {
	return &AccountLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func accountLockKey(account common.Address) string {
	return "lock:account:" + account.Hex()
}

// Acquire obtains the account's distributed lock, waiting while another
// holder has it. The returned release function is safe to call more than
// once.
func (al *AccountLock) Acquire(ctx context.Context, account common.Address) (func(), error) {
	token := uuid.New().String()
	key := accountLockKey(account)

	for {
		ok, err := al.rdb.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", account.Hex(), err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrLockHeld, account.Hex(), ctx.Err())
		case <-timer.C:
		}
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		// Use a background context so release succeeds even if the caller's
		// context is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = al.unlockSc.Run(releaseCtx, al.rdb, []string{key}, token).Err()
	}
	return release, nil
}

// Compile-time interface check.
var _ domain.AccountLocker = (*AccountLock)(nil)
