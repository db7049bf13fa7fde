package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// IntentService defines the scheduled-strategy methods the handler requires.
type IntentService interface {
	ExecuteGrid(ctx context.Context, caller, account common.Address, params domain.GridParams) (int64, error)
	ExecuteDCA(ctx context.Context, caller, account common.Address, params domain.DCAParams) (int64, error)
	ListIntents(ctx context.Context, account common.Address) ([]domain.ScheduledIntent, error)
	CancelIntent(ctx context.Context, caller, account common.Address, id int64) error
}

// IntentHandler serves grid/DCA intent registration endpoints.
type IntentHandler struct {
	intents IntentService
	logger  *slog.Logger
}

// NewIntentHandler creates an IntentHandler with the given service.
func NewIntentHandler(intents IntentService, logger *slog.Logger) *IntentHandler {
	return &IntentHandler{
		intents: intents,
		logger:  logger,
	}
}

// gridRequest is the JSON body for POST /api/strategies/grid.
type gridRequest struct {
	Caller         string `json:"caller"`
	Account        string `json:"account"`
	BaseToken      string `json:"base_token"`
	QuoteToken     string `json:"quote_token"`
	GridCount      int    `json:"grid_count"`
	GridSpacingBps int64  `json:"grid_spacing_bps"`
	LowerBound     string `json:"lower_bound"`
	UpperBound     string `json:"upper_bound"`
}

// ExecuteGrid validates and registers a grid-trading intent.
// POST /api/strategies/grid
func (h *IntentHandler) ExecuteGrid(w http.ResponseWriter, r *http.Request) {
	var body gridRequest
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
	baseToken, err := parseAddress("base_token", body.BaseToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quoteToken, err := parseAddress("quote_token", body.QuoteToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lower, err := parseAmount("lower_bound", body.LowerBound)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	upper, err := parseAmount("upper_bound", body.UpperBound)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.intents.ExecuteGrid(r.Context(), caller, account, domain.GridParams{
		BaseToken:      baseToken,
		QuoteToken:     quoteToken,
		GridCount:      body.GridCount,
		GridSpacingBps: body.GridSpacingBps,
		LowerBound:     lower,
		UpperBound:     upper,
	})
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"intent_id": id, "kind": string(domain.IntentGrid)})
}

// dcaRequest is the JSON body for POST /api/strategies/dca.
type dcaRequest struct {
	Caller           string `json:"caller"`
	Account          string `json:"account"`
	Token            string `json:"token"`
	AmountPerBuy     string `json:"amount_per_buy"`
	FrequencySeconds int64  `json:"frequency_seconds"`
	TotalPurchases   int    `json:"total_purchases"`
}

// ExecuteDCA validates and registers a dollar-cost-averaging intent.
// POST /api/strategies/dca
func (h *IntentHandler) ExecuteDCA(w http.ResponseWriter, r *http.Request) {
	var body dcaRequest
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
	token, err := parseAddress("token", body.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount_per_buy", body.AmountPerBuy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.intents.ExecuteDCA(r.Context(), caller, account, domain.DCAParams{
		Token:            token,
		AmountPerBuy:     amount,
		FrequencySeconds: body.FrequencySeconds,
		TotalPurchases:   body.TotalPurchases,
	})
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"intent_id": id, "kind": string(domain.IntentDCA)})
}

// listIntentsResponse wraps the list intents response.
type listIntentsResponse struct {
	Intents []domain.ScheduledIntent `json:"intents"`
}

// ListIntents returns the account's active scheduled intents.
// GET /api/strategies/intents?account=0x...
func (h *IntentHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	intents, err := h.intents.ListIntents(r.Context(), account)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if intents == nil {
		intents = []domain.ScheduledIntent{}
	}
	writeJSON(w, http.StatusOK, listIntentsResponse{Intents: intents})
}

// CancelIntent deactivates one scheduled intent.
// DELETE /api/strategies/intents/{id}?caller=0x...&account=0x...
func (h *IntentHandler) CancelIntent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress("caller", r.URL.Query().Get("caller"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.intents.CancelIntent(r.Context(), caller, account, id); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intent_id": id, "status": "cancelled"})
}
