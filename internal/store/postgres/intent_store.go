package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// IntentStore implements domain.IntentStore using PostgreSQL. Grid and DCA
// parameter sets are stored as JSONB alongside the kind discriminator.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates a new IntentStore backed by the given connection pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

type intentParams struct {
	Grid *domain.GridParams `json:"grid,omitempty"`
	DCA  *domain.DCAParams  `json:"dca,omitempty"`
}

// Create registers a scheduled intent and returns its id.
func (s *IntentStore) Create(ctx context.Context, intent domain.ScheduledIntent) (int64, error) {
	paramsJSON, err := json.Marshal(intentParams{Grid: intent.Grid, DCA: intent.DCA})
	if err != nil {
		return 0, fmt.Errorf("postgres: marshal intent params: %w", err)
	}

	const query = `
		INSERT INTO scheduled_intents (account, kind, params_json, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err = s.pool.QueryRow(ctx, query,
		intent.Account.Hex(), string(intent.Kind), paramsJSON,
		intent.CreatedAt, intent.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create intent: %w", err)
	}
	return id, nil
}

// ListActive returns the account's active intents in registration order.
func (s *IntentStore) ListActive(ctx context.Context, account common.Address) ([]domain.ScheduledIntent, error) {
	const query = `
		SELECT id, account, kind, params_json, created_at, is_active
		FROM scheduled_intents
		WHERE account = $1 AND is_active
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list intents: %w", err)
	}
	defer rows.Close()

	var intents []domain.ScheduledIntent
	for rows.Next() {
		var intent domain.ScheduledIntent
		var acct, kind string
		var paramsJSON []byte

		if err := rows.Scan(&intent.ID, &acct, &kind, &paramsJSON, &intent.CreatedAt, &intent.IsActive); err != nil {
			return nil, fmt.Errorf("postgres: scan intent: %w", err)
		}
		intent.Account = common.HexToAddress(acct)
		intent.Kind = domain.IntentKind(kind)

		var params intentParams
		if err := json.Unmarshal(paramsJSON, &params); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal intent %d params: %w", intent.ID, err)
		}
		intent.Grid = params.Grid
		intent.DCA = params.DCA
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list intents rows: %w", err)
	}
	return intents, nil
}

// Deactivate marks an intent inactive.
func (s *IntentStore) Deactivate(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_intents SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate intent %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.IntentStore = (*IntentStore)(nil)
