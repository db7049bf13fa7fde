package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// Admin holds the engine's mutable control plane: the approved-token set,
// the authorized-caller set, and the emergency pause switch. All state is
// injected and instance-local, never ambient; every mutation requires the
// owner capability and is audited.
type Admin struct {
	owner  common.Address
	audit  domain.AuditStore
	logger *slog.Logger

	mu         sync.RWMutex
	paused     bool
	approved   map[common.Address]bool
	authorized map[common.Address]bool
}

// NewAdmin creates the control plane with its initial token approvals,
// caller authorizations, and pause state.
func NewAdmin(owner common.Address, approvedTokens, authorizedCallers []common.Address, startPaused bool, audit domain.AuditStore, logger *slog.Logger) *Admin {
	a := &Admin{
		owner:      owner,
		audit:      audit,
		logger:     logger.With(slog.String("component", "admin")),
		paused:     startPaused,
		approved:   make(map[common.Address]bool, len(approvedTokens)),
		authorized: make(map[common.Address]bool, len(authorizedCallers)),
	}
	for _, t := range approvedTokens {
		a.approved[t] = true
	}
	for _, c := range authorizedCallers {
		a.authorized[c] = true
	}
	return a
}

// Owner returns the owner identity.
func (a *Admin) Owner() common.Address { return a.owner }

// Paused reports the emergency pause state.
func (a *Admin) Paused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// TokenApproved reports whether a token may be traded.
func (a *Admin) TokenApproved(token common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.approved[token]
}

// ApprovedTokens returns the current approved-token set.
func (a *Admin) ApprovedTokens() []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]common.Address, 0, len(a.approved))
	for t, ok := range a.approved {
		if ok {
			out = append(out, t)
		}
	}
	return out
}

// CanTrade reports whether caller may trade on behalf of account. The
// account itself, the owner, and explicitly authorized callers qualify.
func (a *Admin) CanTrade(caller, account common.Address) bool {
	if caller == account || caller == a.owner {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authorized[caller]
}

// SetPaused flips the emergency pause switch. Owner only.
func (a *Admin) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	if caller != a.owner {
		return fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller.Hex())
	}
	a.mu.Lock()
	a.paused = paused
	a.mu.Unlock()

	a.logger.WarnContext(ctx, "pause state changed", slog.Bool("paused", paused))
	a.record(ctx, "pause_changed", map[string]any{"caller": caller.Hex(), "paused": paused})
	return nil
}

// SetTokenApproval adds or removes a token from the approved set. Owner only.
func (a *Admin) SetTokenApproval(ctx context.Context, caller, token common.Address, approved bool) error {
	if caller != a.owner {
		return fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller.Hex())
	}
	a.mu.Lock()
	if approved {
		a.approved[token] = true
	} else {
		delete(a.approved, token)
	}
	a.mu.Unlock()

	a.record(ctx, "token_approval_changed", map[string]any{
		"caller":   caller.Hex(),
		"token":    token.Hex(),
		"approved": approved,
	})
	return nil
}

// SetCallerAuthorization grants or revokes the trading capability for a
// caller acting on other accounts. Owner only.
func (a *Admin) SetCallerAuthorization(ctx context.Context, caller, subject common.Address, authorized bool) error {
	if caller != a.owner {
		return fmt.Errorf("%w: %s is not the owner", domain.ErrUnauthorized, caller.Hex())
	}
	a.mu.Lock()
	if authorized {
		a.authorized[subject] = true
	} else {
		delete(a.authorized, subject)
	}
	a.mu.Unlock()

	a.record(ctx, "caller_authorization_changed", map[string]any{
		"caller":     caller.Hex(),
		"subject":    subject.Hex(),
		"authorized": authorized,
	})
	return nil
}

func (a *Admin) record(ctx context.Context, event string, detail map[string]any) {
	if err := a.audit.Log(ctx, event, detail); err != nil {
		a.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
