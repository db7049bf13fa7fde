package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Trade ids come
// from a BIGSERIAL sequence, so they are monotonic and 1-based.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, account, input_token, output_token,
	input_amount::text, output_amount::text, executed_at, trade_type,
	status, strategy, reasoning`

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	var account, inputToken, outputToken, inputAmount, outputAmount string
	var tradeType, status, strategy string

	err := row.Scan(
		&t.ID, &account, &inputToken, &outputToken,
		&inputAmount, &outputAmount, &t.Timestamp,
		&tradeType, &status, &strategy, &t.Reasoning,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Account = common.HexToAddress(account)
	t.InputToken = common.HexToAddress(inputToken)
	t.OutputToken = common.HexToAddress(outputToken)
	t.Type = domain.TradeType(tradeType)
	t.Status = domain.TradeStatus(status)
	t.Strategy = domain.Strategy(strategy)
	if t.InputAmount, err = parseNumeric(inputAmount); err != nil {
		return domain.Trade{}, err
	}
	if t.OutputAmount, err = parseNumeric(outputAmount); err != nil {
		return domain.Trade{}, err
	}
	return t, nil
}

func scanTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Append writes a new trade log entry and returns its id. Entries are never
// mutated afterwards.
func (s *TradeStore) Append(ctx context.Context, t domain.Trade) (int64, error) {
	const query = `
		INSERT INTO trades (
			account, input_token, output_token, input_amount, output_amount,
			executed_at, trade_type, status, strategy, reasoning
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		t.Account.Hex(), t.InputToken.Hex(), t.OutputToken.Hex(),
		numericArg(t.InputAmount), numericArg(t.OutputAmount),
		t.Timestamp, string(t.Type), string(t.Status), string(t.Strategy), t.Reasoning,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: append trade: %w", err)
	}
	return id, nil
}

// GetByID retrieves a trade by its id.
func (s *TradeStore) GetByID(ctx context.Context, id int64) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id)

	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %d: %w", id, err)
	}
	return t, nil
}

// ListByAccount returns the account's trades, newest first, with pagination
// and optional time filtering.
func (s *TradeStore) ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE account = $1`
	args := []any{account.Hex()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND executed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND executed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades executed strictly before the cutoff, oldest
// first. The archiver uses it to page out history.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE executed_at < $1 ORDER BY id ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before: %w", err)
	}
	return trades, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
