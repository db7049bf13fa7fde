package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/store/memory"
)

// captureWriter records uploaded objects in memory.
type captureWriter struct {
	objects map[string][]byte
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{objects: make(map[string][]byte)}
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	return nil
}

func (w *captureWriter) Exists(_ context.Context, path string) (bool, error) {
	_, ok := w.objects[path]
	return ok, nil
}

func TestSweepArchivesOldTradesAndAudit(t *testing.T) {
	ctx := context.Background()
	trades := memory.NewTradeStore()
	audit := memory.NewAuditStore()
	writer := newCaptureWriter()

	account := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	old := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, ts := range []time.Time{old, old.Add(time.Hour), recent} {
		_, err := trades.Append(ctx, domain.Trade{
			Account:     account,
			InputAmount: big.NewInt(1),
			Timestamp:   ts,
			Type:        domain.TradeTypeSwap,
			Status:      domain.TradeStatusExecuted,
		})
		require.NoError(t, err)
	}
	require.NoError(t, audit.Log(ctx, "old_event", map[string]any{"n": 1}))

	arch := NewArchiver(writer, writer, trades, audit, audit, slog.New(slog.DiscardHandler))

	// Retention cutoff sits between the old and recent trades. Audit entries
	// are stamped now, so they stay put.
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	count, err := arch.Sweep(ctx, now, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "two old trades, no old audit entries")

	obj, ok := writer.objects["archive/trades/2025-05.jsonl"]
	require.True(t, ok, "uploaded keys: %v", writer.objects)
	assert.Equal(t, 2, strings.Count(string(obj), "\n"), "one JSON line per trade")
	assert.True(t, bytes.Contains(obj, []byte(account.Hex())))
}

func TestArchiveTradesEmptyIsNoop(t *testing.T) {
	writer := newCaptureWriter()
	audit := memory.NewAuditStore()
	arch := NewArchiver(writer, writer, memory.NewTradeStore(), audit, audit, slog.New(slog.DiscardHandler))

	count, err := arch.ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.objects)
}
