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

// PortfolioStore implements domain.PortfolioStore using PostgreSQL. The
// token and target lists live in parallel array columns.
type PortfolioStore struct {
	pool *pgxpool.Pool
}

// NewPortfolioStore creates a new PortfolioStore backed by the given connection pool.
func NewPortfolioStore(pool *pgxpool.Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

const portfolioSelectCols = `id, owner, name, tokens, target_bps,
	total_value_at_last::text, last_rebalance_at, is_active,
	rebalance_frequency, created_at`

func scanPortfolio(row pgx.Row) (domain.Portfolio, error) {
	var p domain.Portfolio
	var owner, frequency string
	var tokens []string
	var totalValue string
	var lastRebalance *time.Time

	err := row.Scan(
		&p.ID, &owner, &p.Name, &tokens, &p.TargetBps,
		&totalValue, &lastRebalance, &p.IsActive,
		&frequency, &p.CreatedAt,
	)
	if err != nil {
		return domain.Portfolio{}, err
	}
	p.Owner = common.HexToAddress(owner)
	p.RebalanceFrequency = domain.RebalanceFrequency(frequency)
	p.Tokens = make([]common.Address, len(tokens))
	for i, t := range tokens {
		p.Tokens[i] = common.HexToAddress(t)
	}
	if p.TotalValueAtLast, err = parseNumeric(totalValue); err != nil {
		return domain.Portfolio{}, err
	}
	if lastRebalance != nil {
		p.LastRebalanceAt = *lastRebalance
	}
	return p, nil
}

// Create inserts a portfolio and returns its assigned id.
func (s *PortfolioStore) Create(ctx context.Context, p domain.Portfolio) (int64, error) {
	const query = `
		INSERT INTO portfolios (
			owner, name, tokens, target_bps, total_value_at_last,
			last_rebalance_at, is_active, rebalance_frequency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.Owner.Hex(), p.Name, tokenHexes(p.Tokens), p.TargetBps,
		numericArg(p.TotalValueAtLast), nullableTime(p.LastRebalanceAt),
		p.IsActive, string(p.RebalanceFrequency), p.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create portfolio: %w", err)
	}
	return id, nil
}

// GetByID retrieves a portfolio by id.
func (s *PortfolioStore) GetByID(ctx context.Context, id int64) (domain.Portfolio, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios WHERE id = $1`, id)

	p, err := scanPortfolio(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Portfolio{}, domain.ErrNotFound
		}
		return domain.Portfolio{}, fmt.Errorf("postgres: get portfolio %d: %w", id, err)
	}
	return p, nil
}

// Update replaces all mutable fields of a portfolio.
func (s *PortfolioStore) Update(ctx context.Context, p domain.Portfolio) error {
	const query = `
		UPDATE portfolios SET
			name                = $2,
			tokens              = $3,
			target_bps          = $4,
			total_value_at_last = $5,
			last_rebalance_at   = $6,
			is_active           = $7,
			rebalance_frequency = $8
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Name, tokenHexes(p.Tokens), p.TargetBps,
		numericArg(p.TotalValueAtLast), nullableTime(p.LastRebalanceAt),
		p.IsActive, string(p.RebalanceFrequency),
	)
	if err != nil {
		return fmt.Errorf("postgres: update portfolio %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOwner returns the owner's portfolios ordered by id.
func (s *PortfolioStore) ListByOwner(ctx context.Context, owner common.Address) ([]domain.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios
		 WHERE owner = $1 ORDER BY id ASC`, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list portfolios rows: %w", err)
	}
	return portfolios, nil
}

// ListActive returns every active portfolio ordered by id.
func (s *PortfolioStore) ListActive(ctx context.Context) ([]domain.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios
		 WHERE is_active ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active portfolios rows: %w", err)
	}
	return portfolios, nil
}

func tokenHexes(tokens []common.Address) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Hex()
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.PortfolioStore = (*PortfolioStore)(nil)
