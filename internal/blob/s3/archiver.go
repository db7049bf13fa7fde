package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// Narrow store interfaces: the archiver only needs the time-ranged queries it
// actually calls, not the full domain store interfaces.

// TradeArchiveStore provides read access to trades for archival purposes.
type TradeArchiveStore interface {
	// ListBefore returns all trades executed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// AuditArchiveStore provides read access to audit entries for archival
// purposes.
type AuditArchiveStore interface {
	// ListBefore returns all audit entries created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// verifier checks that an uploaded archive object actually landed.
type verifier interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver uploads old trade log entries and audit rows to S3 as JSONL,
// partitioned by the year-month of the cutoff. The primary store keeps its
// rows: the trade log is append-only and is never pruned here.
type Archiver struct {
	writer domain.BlobWriter
	verify verifier
	trades TradeArchiveStore
	audit  AuditArchiveStore
	log    domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver. verify may be nil to skip the post-upload
// existence check.
func NewArchiver(
	writer domain.BlobWriter,
	verify verifier,
	trades TradeArchiveStore,
	audit AuditArchiveStore,
	log domain.AuditStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer: writer,
		verify: verify,
		trades: trades,
		audit:  audit,
		log:    log,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Sweep archives everything older than retention relative to now and returns
// the total number of archived records.
func (a *Archiver) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	before := now.Add(-retention)

	trades, err := a.ArchiveTrades(ctx, before)
	if err != nil {
		return 0, err
	}
	audits, err := a.ArchiveAudit(ctx, before)
	if err != nil {
		return trades, err
	}

	if trades+audits > 0 {
		a.logger.InfoContext(ctx, "archive sweep complete",
			slog.Int64("trades", trades),
			slog.Int64("audit_entries", audits),
			slog.String("before", before.Format(time.RFC3339)),
		)
	}
	return trades + audits, nil
}

// ArchiveTrades uploads all trades executed before the cutoff to
// archive/trades/YYYY-MM.jsonl and records the event in the audit log. The
// count of archived records is returned.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	path := archivePath("trades", before)
	if err := upload(ctx, a, path, trades); err != nil {
		return 0, err
	}

	count := int64(len(trades))
	if err := a.log.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}
	return count, nil
}

// ArchiveAudit uploads all audit entries created before the cutoff to
// archive/audit/YYYY-MM.jsonl. The count of archived records is returned.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	path := archivePath("audit", before)
	if err := upload(ctx, a, path, entries); err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// upload serializes records as JSONL, writes the object, and verifies it is
// retrievable when a verifier is configured.
func upload[T any](ctx context.Context, a *Archiver, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal %s: %w", path, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}

	if a.verify != nil {
		ok, err := a.verify.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("s3blob: archive verify %s: %w", path, err)
		}
		if !ok {
			return fmt.Errorf("s3blob: archive verify %s: object missing after upload", path)
		}
	}
	return nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2025-01.jsonl
//	archive/audit/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element becomes one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
