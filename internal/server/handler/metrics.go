package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// metricsTradeWindow caps how many trade log entries one metrics query scans.
const metricsTradeWindow = 500

// MetricsHandler aggregates per-account performance numbers from the trade
// log and the active position set.
type MetricsHandler struct {
	trades    TradeReader
	positions PositionService
	logger    *slog.Logger
}

// NewMetricsHandler creates a MetricsHandler with the given collaborators.
func NewMetricsHandler(trades TradeReader, positions PositionService, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		trades:    trades,
		positions: positions,
		logger:    logger,
	}
}

// metricsResponse is the aggregated performance view for one account.
type metricsResponse struct {
	Account         string         `json:"account"`
	TotalTrades     int            `json:"total_trades"`
	ExecutedTrades  int            `json:"executed_trades"`
	FailedTrades    int            `json:"failed_trades"`
	TradedVolume    string         `json:"traded_volume"`
	TradesByType    map[string]int `json:"trades_by_type"`
	StrategyCounts  map[string]int `json:"strategy_counts"`
	ActivePositions int            `json:"active_positions"`
	PortfolioValue  string         `json:"portfolio_value"`
	UnrealizedPnL   string         `json:"unrealized_pnl"`
	WinningTokens   int            `json:"winning_tokens"`
	LosingTokens    int            `json:"losing_tokens"`
}

// GetMetrics returns the account's performance aggregate over its most recent
// trades and current positions.
// GET /api/metrics?account=0x...
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := h.trades.ListByAccount(r.Context(), account, domain.ListOpts{Limit: metricsTradeWindow})
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	positions, err := h.positions.ActivePositions(r.Context(), account)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	resp := metricsResponse{
		Account:        account.Hex(),
		TotalTrades:    len(trades),
		TradesByType:   make(map[string]int),
		StrategyCounts: make(map[string]int),
	}

	volume := new(big.Int)
	for _, t := range trades {
		resp.TradesByType[string(t.Type)]++
		if t.Strategy != "" {
			resp.StrategyCounts[string(t.Strategy)]++
		}
		switch t.Status {
		case domain.TradeStatusExecuted:
			resp.ExecutedTrades++
			if t.InputAmount != nil {
				volume.Add(volume, t.InputAmount)
			}
		case domain.TradeStatusFailed:
			resp.FailedTrades++
		}
	}
	resp.TradedVolume = volume.String()

	value := new(big.Int)
	pnl := new(big.Int)
	for _, pos := range positions {
		value.Add(value, pos.Value())
		posPnL := pos.UnrealizedPnL()
		pnl.Add(pnl, posPnL)
		switch posPnL.Sign() {
		case 1:
			resp.WinningTokens++
		case -1:
			resp.LosingTokens++
		}
	}
	resp.ActivePositions = len(positions)
	resp.PortfolioValue = value.String()
	resp.UnrealizedPnL = pnl.String()

	writeJSON(w, http.StatusOK, resp)
}
