package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// PositionService defines the ledger methods the position handler requires.
type PositionService interface {
	ActivePositions(ctx context.Context, account common.Address) ([]domain.Position, error)
	PortfolioValue(ctx context.Context, account common.Address) (*big.Int, error)
}

// PositionCloser defines the close operation, routed through the engine so it
// holds the account lock and appends the trade log entry.
type PositionCloser interface {
	ClosePosition(ctx context.Context, caller, account, token common.Address, amount *big.Int) (*big.Int, error)
}

// PositionHistoryReader lists closed and historical positions.
type PositionHistoryReader interface {
	ListHistory(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	ledger  PositionService
	closer  PositionCloser
	history PositionHistoryReader
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given collaborators.
func NewPositionHandler(ledger PositionService, closer PositionCloser, history PositionHistoryReader, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger:  ledger,
		closer:  closer,
		history: history,
		logger:  logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the account's active positions in insertion order.
// GET /api/positions?account=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.ledger.ActivePositions(r.Context(), account)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// ListHistory returns the account's position history, newest first.
// GET /api/positions/history?account=0x...&limit=50&offset=0
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.history.ListHistory(r.Context(), account, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// PortfolioValue returns the sum of amount*currentPrice over the account's
// active positions.
// GET /api/positions/value?account=0x...
func (h *PositionHandler) PortfolioValue(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	value, err := h.ledger.PortfolioValue(r.Context(), account)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.Hex(),
		"value":   value.String(),
	})
}

// closePositionRequest is the JSON body for POST /api/positions/close.
type closePositionRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

// ClosePosition closes up to the requested amount of the account's position
// in a token, realizing PnL.
// POST /api/positions/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var body closePositionRequest
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
	amount, err := parseAmount("amount", body.Amount)
	if err != nil || amount == nil {
		writeError(w, http.StatusBadRequest, "amount must be a base-10 integer")
		return
	}

	closed, err := h.closer.ClosePosition(r.Context(), caller, account, token, amount)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.Hex(),
		"token":   token.Hex(),
		"closed":  closed.String(),
	})
}
