package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// PolicyService defines the strategy-config mutations the admin handler
// requires.
type PolicyService interface {
	SetDefault(ctx context.Context, caller common.Address, strategy domain.Strategy, cfg domain.StrategyConfig) error
	SetAccountOverride(ctx context.Context, caller, account common.Address, cfg domain.StrategyConfig) error
	Defaults(ctx context.Context) (map[domain.Strategy]domain.StrategyConfig, error)
}

// ControlPlane defines the engine control-plane mutations the admin handler
// requires.
type ControlPlane interface {
	Paused() bool
	ApprovedTokens() []common.Address
	SetPaused(ctx context.Context, caller common.Address, paused bool) error
	SetTokenApproval(ctx context.Context, caller, token common.Address, approved bool) error
	SetCallerAuthorization(ctx context.Context, caller, subject common.Address, authorized bool) error
}

// PricePoster accepts oracle price submissions.
type PricePoster interface {
	SetPrice(ctx context.Context, token common.Address, price *big.Int, ts time.Time) error
}

// AuditReader lists audit log entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves the owner-capability control endpoints. Ownership is
// enforced by the services themselves; this layer only parses and maps.
type AdminHandler struct {
	policy  PolicyService
	control ControlPlane
	prices  PricePoster
	audit   AuditReader
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given collaborators.
func NewAdminHandler(policy PolicyService, control ControlPlane, prices PricePoster, audit AuditReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		policy:  policy,
		control: control,
		prices:  prices,
		audit:   audit,
		logger:  logger,
	}
}

// strategyConfigRequest is the JSON body for PUT /api/admin/strategy-config.
type strategyConfigRequest struct {
	Caller   string                `json:"caller"`
	Strategy string                `json:"strategy"`
	Config   domain.StrategyConfig `json:"config"`
}

// SetStrategyConfig replaces the process-wide default config for a strategy.
// PUT /api/admin/strategy-config
func (h *AdminHandler) SetStrategyConfig(w http.ResponseWriter, r *http.Request) {
	var body strategyConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategy, err := domain.ParseStrategy(body.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.policy.SetDefault(r.Context(), caller, strategy, body.Config); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"strategy": string(strategy), "status": "updated"})
}

// ListStrategyConfigs returns every stored strategy default.
// GET /api/admin/strategy-config
func (h *AdminHandler) ListStrategyConfigs(w http.ResponseWriter, r *http.Request) {
	defaults, err := h.policy.Defaults(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": defaults})
}

// accountOverrideRequest is the JSON body for PUT /api/admin/account-override.
type accountOverrideRequest struct {
	Caller  string                `json:"caller"`
	Account string                `json:"account"`
	Config  domain.StrategyConfig `json:"config"`
}

// SetAccountOverride replaces an account's override config.
// PUT /api/admin/account-override
func (h *AdminHandler) SetAccountOverride(w http.ResponseWriter, r *http.Request) {
	var body accountOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseAddress("account", body.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.policy.SetAccountOverride(r.Context(), caller, account, body.Config); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": account.Hex(), "status": "updated"})
}

// pauseRequest is the JSON body for PUT /api/admin/pause.
type pauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// SetPause flips the emergency pause switch.
// PUT /api/admin/pause
func (h *AdminHandler) SetPause(w http.ResponseWriter, r *http.Request) {
	var body pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.control.SetPaused(r.Context(), caller, body.Paused); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": body.Paused})
}

// tokenApprovalRequest is the JSON body for PUT /api/admin/approved-tokens.
type tokenApprovalRequest struct {
	Caller   string `json:"caller"`
	Token    string `json:"token"`
	Approved bool   `json:"approved"`
}

// SetTokenApproval adds or removes a token from the approved set.
// PUT /api/admin/approved-tokens
func (h *AdminHandler) SetTokenApproval(w http.ResponseWriter, r *http.Request) {
	var body tokenApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress("token", body.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.control.SetTokenApproval(r.Context(), caller, token, body.Approved); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token.Hex(), "approved": body.Approved})
}

// ListApprovedTokens returns the current approved-token set.
// GET /api/admin/approved-tokens
func (h *AdminHandler) ListApprovedTokens(w http.ResponseWriter, r *http.Request) {
	tokens := h.control.ApprovedTokens()
	hexes := make([]string, 0, len(tokens))
	for _, t := range tokens {
		hexes = append(hexes, t.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": hexes,
		"paused": h.control.Paused(),
	})
}

// callerAuthRequest is the JSON body for PUT /api/admin/authorized-callers.
type callerAuthRequest struct {
	Caller     string `json:"caller"`
	Subject    string `json:"subject"`
	Authorized bool   `json:"authorized"`
}

// SetCallerAuthorization grants or revokes the delegated trading capability.
// PUT /api/admin/authorized-callers
func (h *AdminHandler) SetCallerAuthorization(w http.ResponseWriter, r *http.Request) {
	var body callerAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject, err := parseAddress("subject", body.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.control.SetCallerAuthorization(r.Context(), caller, subject, body.Authorized); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": subject.Hex(), "authorized": body.Authorized})
}

// postPriceRequest is the JSON body for POST /api/admin/prices.
type postPriceRequest struct {
	Token string `json:"token"`
	Price string `json:"price"`
}

// PostPrice submits an oracle price for a token.
// POST /api/admin/prices
func (h *AdminHandler) PostPrice(w http.ResponseWriter, r *http.Request) {
	var body postPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	token, err := parseAddress("token", body.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := parseAmount("price", body.Price)
	if err != nil || price == nil {
		writeError(w, http.StatusBadRequest, "price must be a base-10 integer")
		return
	}

	if err := h.prices.SetPrice(r.Context(), token, price, time.Now().UTC()); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token.Hex(), "price": price.String()})
}

// listAuditResponse wraps the audit log response.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListAudit returns recent audit log entries.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}
