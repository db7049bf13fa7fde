package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// PriceOracle implements domain.PriceSource using Redis hashes. An external
// feed process writes each token's price to "price:{token}" with fields
// "price" (18-decimal fixed-point integer) and "ts" (Unix nanoseconds); this
// side only reads and enforces the staleness bound.
type PriceOracle struct {
	rdb          *redis.Client
	maxStaleness time.Duration
	now          func() time.Time
}

// NewPriceOracle creates a PriceOracle backed by the given Client. Prices
// older than maxStaleness are reported as unavailable.
func NewPriceOracle(c *Client, maxStaleness time.Duration) *PriceOracle {
	return &PriceOracle{
		rdb:          c.Underlying(),
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (po *PriceOracle) SetClock(now func() time.Time) { po.now = now }

func priceKey(token common.Address) string {
	return "price:" + token.Hex()
}

// SetPrice stores the latest price and timestamp for a token. The admin API
// and backfill tooling use it; the trading path only reads.
func (po *PriceOracle) SetPrice(ctx context.Context, token common.Address, price *big.Int, ts time.Time) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive", domain.ErrInvalidTrade)
	}
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := po.rdb.HSet(ctx, priceKey(token), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", token.Hex(), err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a token. Missing,
// malformed, or stale entries surface as ErrPriceUnavailable.
func (po *PriceOracle) GetPrice(ctx context.Context, token common.Address) (*big.Int, time.Time, error) {
	vals, err := po.rdb.HGetAll(ctx, priceKey(token)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %s: %w", token.Hex(), err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: no feed for %s", domain.ErrPriceUnavailable, token.Hex())
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: no price field for %s", domain.ErrPriceUnavailable, token.Hex())
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok || price.Sign() <= 0 {
		return nil, time.Time{}, fmt.Errorf("%w: malformed price %q for %s", domain.ErrPriceUnavailable, priceStr, token.Hex())
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: no timestamp for %s", domain.ErrPriceUnavailable, token.Hex())
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: malformed timestamp for %s", domain.ErrPriceUnavailable, token.Hex())
	}
	ts := time.Unix(0, tsNano)

	if po.maxStaleness > 0 && po.now().Sub(ts) > po.maxStaleness {
		return nil, time.Time{}, fmt.Errorf("%w: %s price is %s old", domain.ErrPriceUnavailable, token.Hex(), po.now().Sub(ts))
	}
	return price, ts, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*PriceOracle)(nil)
