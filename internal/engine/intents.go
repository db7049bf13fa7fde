package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// ExecuteGrid validates and registers a grid-trading intent for the account.
// Order placement belongs to the external market-access layer; this core
// records the parameter set and broadcasts its registration.
func (e *Engine) ExecuteGrid(ctx context.Context, caller, account common.Address, params domain.GridParams) (int64, error) {
	if !e.admin.CanTrade(caller, account) {
		return 0, fmt.Errorf("%w: %s may not trade for %s", domain.ErrUnauthorized, caller.Hex(), account.Hex())
	}
	if e.admin.Paused() {
		return 0, domain.ErrPaused
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if !e.admin.TokenApproved(params.BaseToken) {
		return 0, fmt.Errorf("%w: %s", domain.ErrTokenNotApproved, params.BaseToken.Hex())
	}
	if !e.admin.TokenApproved(params.QuoteToken) {
		return 0, fmt.Errorf("%w: %s", domain.ErrTokenNotApproved, params.QuoteToken.Hex())
	}

	id, err := e.intents.Create(ctx, domain.ScheduledIntent{
		Account:   account,
		Kind:      domain.IntentGrid,
		Grid:      &params,
		CreatedAt: e.now().UTC(),
		IsActive:  true,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: register grid intent: %w", err)
	}
	e.emitIntent(ctx, "grid_registered", id, account)
	return id, nil
}

// ExecuteDCA validates and registers a dollar-cost-averaging intent.
func (e *Engine) ExecuteDCA(ctx context.Context, caller, account common.Address, params domain.DCAParams) (int64, error) {
	if !e.admin.CanTrade(caller, account) {
		return 0, fmt.Errorf("%w: %s may not trade for %s", domain.ErrUnauthorized, caller.Hex(), account.Hex())
	}
	if e.admin.Paused() {
		return 0, domain.ErrPaused
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if !e.admin.TokenApproved(params.Token) {
		return 0, fmt.Errorf("%w: %s", domain.ErrTokenNotApproved, params.Token.Hex())
	}

	id, err := e.intents.Create(ctx, domain.ScheduledIntent{
		Account:   account,
		Kind:      domain.IntentDCA,
		DCA:       &params,
		CreatedAt: e.now().UTC(),
		IsActive:  true,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: register dca intent: %w", err)
	}
	e.emitIntent(ctx, "dca_registered", id, account)
	return id, nil
}

// ListIntents returns the account's active scheduled intents.
func (e *Engine) ListIntents(ctx context.Context, account common.Address) ([]domain.ScheduledIntent, error) {
	intents, err := e.intents.ListActive(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("engine: list intents: %w", err)
	}
	return intents, nil
}

// CancelIntent deactivates a scheduled intent. The account owner, the
// process owner, and authorized callers may cancel.
func (e *Engine) CancelIntent(ctx context.Context, caller, account common.Address, id int64) error {
	if !e.admin.CanTrade(caller, account) {
		return fmt.Errorf("%w: %s may not act for %s", domain.ErrUnauthorized, caller.Hex(), account.Hex())
	}
	intents, err := e.intents.ListActive(ctx, account)
	if err != nil {
		return fmt.Errorf("engine: list intents: %w", err)
	}
	for _, intent := range intents {
		if intent.ID == id {
			if err := e.intents.Deactivate(ctx, id); err != nil {
				return fmt.Errorf("engine: deactivate intent: %w", err)
			}
			e.emitIntent(ctx, "intent_cancelled", id, account)
			return nil
		}
	}
	return fmt.Errorf("%w: intent %d", domain.ErrNotFound, id)
}

func (e *Engine) emitIntent(ctx context.Context, event string, id int64, account common.Address) {
	payload, _ := json.Marshal(map[string]any{
		"event":     event,
		"intent_id": id,
		"account":   account.Hex(),
	})
	if err := e.bus.Publish(ctx, "intents", payload); err != nil {
		e.logger.WarnContext(ctx, "publish intent event failed", slog.String("error", err.Error()))
	}
	if err := e.audit.Log(ctx, event, map[string]any{"intent_id": id, "account": account.Hex()}); err != nil {
		e.logger.WarnContext(ctx, "audit intent failed", slog.String("error", err.Error()))
	}
}
