package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// RebalanceService defines the portfolio methods the handler requires.
type RebalanceService interface {
	CreatePortfolio(ctx context.Context, owner common.Address, name string, tokens []common.Address, targetBps []int64, freq domain.RebalanceFrequency) (domain.Portfolio, error)
	Get(ctx context.Context, id int64) (domain.Portfolio, error)
	ListByOwner(ctx context.Context, owner common.Address) ([]domain.Portfolio, error)
	Recommendations(ctx context.Context, portfolioID int64) ([]domain.RebalanceRecommendation, error)
	Rebalance(ctx context.Context, caller common.Address, portfolioID int64, force bool) (int, error)
}

// PortfolioHandler serves portfolio and rebalancing endpoints.
type PortfolioHandler struct {
	rebalance RebalanceService
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service.
func NewPortfolioHandler(rebalance RebalanceService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		rebalance: rebalance,
		logger:    logger,
	}
}

// createPortfolioRequest is the JSON body for POST /api/portfolios. Tokens
// and target_bps are parallel lists; targets must sum to 10000.
type createPortfolioRequest struct {
	Owner     string   `json:"owner"`
	Name      string   `json:"name"`
	Tokens    []string `json:"tokens"`
	TargetBps []int64  `json:"target_bps"`
	Frequency string   `json:"rebalance_frequency"`
}

// CreatePortfolio validates and persists a new portfolio allocation.
// POST /api/portfolios
func (h *PortfolioHandler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var body createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	owner, err := parseAddress("owner", body.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens := make([]common.Address, 0, len(body.Tokens))
	for _, t := range body.Tokens {
		token, err := parseAddress("tokens[]", t)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tokens = append(tokens, token)
	}
	freq, err := domain.ParseFrequency(body.Frequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.rebalance.CreatePortfolio(r.Context(), owner, body.Name, tokens, body.TargetBps, freq)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPortfolio returns one portfolio by id.
// GET /api/portfolios/{id}
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.rebalance.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listPortfoliosResponse wraps the list portfolios response.
type listPortfoliosResponse struct {
	Portfolios []domain.Portfolio `json:"portfolios"`
}

// ListPortfolios returns the owner's portfolios.
// GET /api/portfolios?owner=0x...
func (h *PortfolioHandler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	portfolios, err := h.rebalance.ListByOwner(r.Context(), owner)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if portfolios == nil {
		portfolios = []domain.Portfolio{}
	}
	writeJSON(w, http.StatusOK, listPortfoliosResponse{Portfolios: portfolios})
}

// listRecommendationsResponse wraps the recommendations response.
type listRecommendationsResponse struct {
	Recommendations []domain.RebalanceRecommendation `json:"recommendations"`
}

// Recommendations returns each portfolio token's drift from target.
// GET /api/portfolios/{id}/recommendations
func (h *PortfolioHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := h.rebalance.Recommendations(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if recs == nil {
		recs = []domain.RebalanceRecommendation{}
	}
	writeJSON(w, http.StatusOK, listRecommendationsResponse{Recommendations: recs})
}

// rebalanceRequest is the JSON body for POST /api/portfolios/{id}/rebalance.
type rebalanceRequest struct {
	Caller string `json:"caller"`
}

// Rebalance triggers a rebalancing pass on the portfolio. The force query
// parameter skips the frequency due-check.
// POST /api/portfolios/{id}/rebalance?force=true
func (h *PortfolioHandler) Rebalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body rebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	force := r.URL.Query().Get("force") == "true"

	applied, err := h.rebalance.Rebalance(r.Context(), caller, id, force)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"portfolio_id":   id,
		"trades_applied": applied,
	})
}
