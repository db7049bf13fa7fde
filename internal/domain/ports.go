package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceSource is the price-oracle port. Implementations must respect the
// caller's context deadline; a timeout or missing price surfaces as
// ErrPriceUnavailable, never as a stall.
type PriceSource interface {
	GetPrice(ctx context.Context, token common.Address) (price *big.Int, ts time.Time, err error)
}

// SignalBus is the pub/sub port used to broadcast decision, trade, and
// position events to subscribers (WebSocket hub, external consumers).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// VolumeLimiter enforces the per-account daily volume cap. CheckAndConsume
// is atomic per account: the day bucket is floor(now/86400); a rollover
// resets the accumulator before the check and that reset is sticky even when
// the check fails. Refund compensates an already-consumed amount when a later
// step of the same trade fails.
type VolumeLimiter interface {
	CheckAndConsume(ctx context.Context, account common.Address, amount, dailyLimit *big.Int, now time.Time) error
	Refund(ctx context.Context, account common.Address, amount *big.Int, now time.Time) error
}

// AccountLocker serializes mutations per account. Acquire blocks until the
// account's critical section is free or the context is done; the returned
// function releases the lock and is safe to call more than once.
type AccountLocker interface {
	Acquire(ctx context.Context, account common.Address) (func(), error)
}

// BlobWriter uploads an object to blob storage (trade/audit archival).
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo describes one stored archive object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader retrieves and lists archived objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}
