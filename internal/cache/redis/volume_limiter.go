package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// volumeKeyTTL keeps yesterday's accumulator around briefly for inspection,
// then lets Redis expire it.
const volumeKeyTTL = 48 * time.Hour

// txRetries bounds the optimistic-transaction retry loop under contention.
const txRetries = 16

// VolumeLimiter implements domain.VolumeLimiter across processes. Each
// account's accumulator lives at "volume:{account}:{day}", so a day rollover
// is just a key change and is inherently sticky. Amounts are 18-decimal
// fixed-point integers, which exceed Lua number precision, so atomicity
// comes from WATCH/MULTI optimistic transactions with the arithmetic done
// client-side in big.Int.
type VolumeLimiter struct {
	rdb *redis.Client
}

// NewVolumeLimiter creates a VolumeLimiter backed by the given Client.
func NewVolumeLimiter(c *Client) *VolumeLimiter {
	return &VolumeLimiter{rdb: c.Underlying()}
}

func volumeKey(account common.Address, day int64) string {
	return fmt.Sprintf("volume:%s:%d", account.Hex(), day)
}

func currentUsed(ctx context.Context, tx *redis.Tx, key string) (*big.Int, error) {
	val, err := tx.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	used, ok := new(big.Int).SetString(val, 10)
	if !ok {
		return nil, fmt.Errorf("malformed accumulator %q", val)
	}
	return used, nil
}

// CheckAndConsume adds amount to the account's daily accumulator unless that
// would breach dailyLimit. A nil dailyLimit means unlimited.
func (vl *VolumeLimiter) CheckAndConsume(ctx context.Context, account common.Address, amount, dailyLimit *big.Int, now time.Time) error {
	key := volumeKey(account, now.Unix()/86_400)

	for i := 0; i < txRetries; i++ {
		var limitErr error
		err := vl.rdb.Watch(ctx, func(tx *redis.Tx) error {
			used, err := currentUsed(ctx, tx, key)
			if err != nil {
				return err
			}
			next := new(big.Int).Add(used, amount)
			if dailyLimit != nil && next.Cmp(dailyLimit) > 0 {
				limitErr = fmt.Errorf("%w: %s used + %s requested > %s limit",
					domain.ErrDailyVolumeExceeded, used, amount, dailyLimit)
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next.String(), volumeKeyTTL)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: consume volume %s: %w", account.Hex(), err)
		}
		return limitErr
	}
	return fmt.Errorf("redis: consume volume %s: transaction contention", account.Hex())
}

// Refund subtracts a previously consumed amount from the account's current
// day bucket. Refunds against an already rolled-over day hit the expired
// key and are effectively dropped; the accumulator never goes negative.
func (vl *VolumeLimiter) Refund(ctx context.Context, account common.Address, amount *big.Int, now time.Time) error {
	key := volumeKey(account, now.Unix()/86_400)

	for i := 0; i < txRetries; i++ {
		err := vl.rdb.Watch(ctx, func(tx *redis.Tx) error {
			used, err := currentUsed(ctx, tx, key)
			if err != nil {
				return err
			}
			next := new(big.Int).Sub(used, amount)
			if next.Sign() < 0 {
				next.SetInt64(0)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next.String(), volumeKeyTTL)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: refund volume %s: %w", account.Hex(), err)
		}
		return nil
	}
	return fmt.Errorf("redis: refund volume %s: transaction contention", account.Hex())
}

// Compile-time interface check.
var _ domain.VolumeLimiter = (*VolumeLimiter)(nil)
