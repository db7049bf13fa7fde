package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/engine"
)

// TradeService defines the execution methods the trade handler requires.
type TradeService interface {
	ExecuteTrade(ctx context.Context, caller common.Address, req engine.TradeRequest) (int64, error)
}

// TradeReader defines the trade log queries the handler requires.
type TradeReader interface {
	GetByID(ctx context.Context, id int64) (domain.Trade, error)
	ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade execution and trade log endpoints.
type TradeHandler struct {
	engine TradeService
	trades TradeReader
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given collaborators.
func NewTradeHandler(eng TradeService, trades TradeReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		engine: eng,
		trades: trades,
		logger: logger,
	}
}

// executeTradeRequest is the JSON body for POST /api/trades. Amounts are
// 18-decimal fixed-point integers in decimal string form.
type executeTradeRequest struct {
	Caller          string  `json:"caller"`
	Account         string  `json:"account"`
	InputToken      string  `json:"input_token"`
	OutputToken     string  `json:"output_token"`
	InputAmount     string  `json:"input_amount"`
	MinOutputAmount string  `json:"min_output_amount,omitempty"`
	Strategy        string  `json:"strategy"`
	Reasoning       string  `json:"reasoning,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// ExecuteTrade submits a trade through the full gate sequence.
// POST /api/trades
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var body executeTradeRequest
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
	inputToken, err := parseAddress("input_token", body.InputToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outputToken, err := parseAddress("output_token", body.OutputToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inputAmount, err := parseAmount("input_amount", body.InputAmount)
	if err != nil || inputAmount == nil {
		writeError(w, http.StatusBadRequest, "input_amount must be a base-10 integer")
		return
	}
	minOutput, err := parseAmount("min_output_amount", body.MinOutputAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategy, err := domain.ParseStrategy(body.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tradeID, err := h.engine.ExecuteTrade(r.Context(), caller, engine.TradeRequest{
		Account:         account,
		InputToken:      inputToken,
		OutputToken:     outputToken,
		InputAmount:     inputAmount,
		MinOutputAmount: minOutput,
		Strategy:        strategy,
		Reasoning:       body.Reasoning,
		Confidence:      body.Confidence,
	})
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"trade_id": tradeID,
		"status":   string(domain.TradeStatusExecuted),
	})
}

// GetTrade returns one trade log entry by id.
// GET /api/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trade, err := h.trades.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// listTradesResponse wraps the list trades response.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns an account's trades, newest first.
// GET /api/trades?account=0x...&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := h.trades.ListByAccount(r.Context(), account, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}
