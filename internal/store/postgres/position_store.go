package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, account, token, amount::text, entry_price::text,
	current_price::text, opened_at, updated_at, is_active`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var account, token, amount, entryPrice, currentPrice string

	err := row.Scan(
		&p.ID, &account, &token,
		&amount, &entryPrice, &currentPrice,
		&p.OpenedAt, &p.UpdatedAt, &p.IsActive,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Account = common.HexToAddress(account)
	p.Token = common.HexToAddress(token)
	if p.Amount, err = parseNumeric(amount); err != nil {
		return domain.Position{}, err
	}
	if p.EntryPrice, err = parseNumeric(entryPrice); err != nil {
		return domain.Position{}, err
	}
	if p.CurrentPrice, err = parseNumeric(currentPrice); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position and returns its assigned id.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) (int64, error) {
	const query = `
		INSERT INTO positions (
			account, token, amount, entry_price, current_price,
			opened_at, updated_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.Account.Hex(), p.Token.Hex(),
		numericArg(p.Amount), numericArg(p.EntryPrice), numericArg(p.CurrentPrice),
		p.OpenedAt, p.UpdatedAt, p.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create position: %w", err)
	}
	return id, nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			amount        = $2,
			entry_price   = $3,
			current_price = $4,
			updated_at    = $5,
			is_active     = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID,
		numericArg(p.Amount), numericArg(p.EntryPrice), numericArg(p.CurrentPrice),
		p.UpdatedAt, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetActive returns the active position for (account, token).
func (s *PositionStore) GetActive(ctx context.Context, account, token common.Address) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE account = $1 AND token = $2 AND is_active`,
		account.Hex(), token.Hex())

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get active position: %w", err)
	}
	return p, nil
}

// ListActive returns the account's active positions in insertion order.
func (s *PositionStore) ListActive(ctx context.Context, account common.Address) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE account = $1 AND is_active
		 ORDER BY opened_at ASC, id ASC`, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active positions: %w", err)
	}
	return positions, nil
}

// ListActiveByToken returns the account's active positions in one token, in
// insertion order.
func (s *PositionStore) ListActiveByToken(ctx context.Context, account, token common.Address) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE account = $1 AND token = $2 AND is_active
		 ORDER BY opened_at ASC, id ASC`, account.Hex(), token.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions by token: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active positions by token: %w", err)
	}
	return positions, nil
}

// ListHistory returns the account's positions, newest first, with pagination
// and optional time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE account = $1`
	args := []any{account.Hex()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

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
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
