package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuraltrade/tradecore/internal/domain"
	"github.com/neuraltrade/tradecore/internal/engine"
	"github.com/neuraltrade/tradecore/internal/ledger"
	"github.com/neuraltrade/tradecore/internal/policy"
	"github.com/neuraltrade/tradecore/internal/rebalance"
	"github.com/neuraltrade/tradecore/internal/store/memory"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	trader = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	usdc   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fixture struct {
	trade     *TradeHandler
	position  *PositionHandler
	portfolio *PortfolioHandler
	intent    *IntentHandler
	admin     *AdminHandler
	metrics   *MetricsHandler

	engine *engine.Engine
	ledger *ledger.Ledger
	prices *engine.PriceBook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	positions := memory.NewPositionStore()
	trades := memory.NewTradeStore()
	audit := memory.NewAuditStore()
	bus := memory.NewBus()

	led := ledger.New(positions, bus, audit, logger)
	pol := policy.New(memory.NewPolicyStore(), audit, owner, logger)
	require.NoError(t, pol.Seed(context.Background()))

	prices := engine.NewPriceBook(0)
	require.NoError(t, prices.SetPrice(context.Background(), usdc, domain.Wad(1), time.Now()))
	require.NoError(t, prices.SetPrice(context.Background(), weth, domain.Wad(2000), time.Now()))

	adminPlane := engine.NewAdmin(owner, []common.Address{usdc, weth}, nil, false, audit, logger)
	eng := engine.New(led, pol, engine.NewMemoryLimiter(), engine.NewKeyedLocker(),
		trades, memory.NewIntentStore(), prices, bus, audit, adminPlane, logger)

	reb := rebalance.New(memory.NewPortfolioStore(), positions, prices, eng, usdc, 500, logger)

	return &fixture{
		trade:     NewTradeHandler(eng, trades, logger),
		position:  NewPositionHandler(led, eng, positions, logger),
		portfolio: NewPortfolioHandler(reb, logger),
		intent:    NewIntentHandler(eng, logger),
		admin:     NewAdminHandler(pol, adminPlane, prices, audit, logger),
		metrics:   NewMetricsHandler(trades, led, logger),
		engine:    eng,
		ledger:    led,
		prices:    prices,
	}
}

func (f *fixture) fund(t *testing.T, account, token common.Address, units, priceUnits int64) {
	t.Helper()
	require.NoError(t, f.ledger.ApplyBuy(context.Background(), account, token, domain.Wad(units), domain.Wad(priceUnits)))
}

func postJSON(t *testing.T, h http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func putJSON(t *testing.T, h http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, target, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func tradeBody(units int64) map[string]any {
	return map[string]any{
		"caller":       trader.Hex(),
		"account":      trader.Hex(),
		"input_token":  usdc.Hex(),
		"output_token": weth.Hex(),
		"input_amount": domain.Wad(units).String(),
		"strategy":     "MOMENTUM",
		"reasoning":    "breakout above resistance",
		"confidence":   82,
	}
}

func TestExecuteTradeEndpoint(t *testing.T) {
	f := newFixture(t)
	f.fund(t, trader, usdc, 10_000, 1)

	rec := postJSON(t, f.trade.ExecuteTrade, "/api/trades", tradeBody(2_000))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["trade_id"])
	assert.Equal(t, "EXECUTED", body["status"])
}

func TestExecuteTradeRejectsBadAddress(t *testing.T) {
	f := newFixture(t)
	body := tradeBody(2_000)
	body["account"] = "not-an-address"

	rec := postJSON(t, f.trade.ExecuteTrade, "/api/trades", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteTradeMapsDomainErrors(t *testing.T) {
	f := newFixture(t)
	f.fund(t, trader, usdc, 10_000, 1)

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	body := tradeBody(2_000)
	body["caller"] = stranger.Hex()
	rec := postJSON(t, f.trade.ExecuteTrade, "/api/trades", body)
	assert.Equal(t, http.StatusForbidden, rec.Code, "unauthorized caller")

	require.NoError(t, f.engine.Admin().SetPaused(context.Background(), owner, true))
	rec = postJSON(t, f.trade.ExecuteTrade, "/api/trades", tradeBody(2_000))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "paused")
	require.NoError(t, f.engine.Admin().SetPaused(context.Background(), owner, false))

	rec = postJSON(t, f.trade.ExecuteTrade, "/api/trades", tradeBody(100))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "below strategy minimum")

	rec = postJSON(t, f.trade.ExecuteTrade, "/api/trades", tradeBody(20_000))
	assert.Equal(t, http.StatusConflict, rec.Code, "insufficient position")
}

func TestGetTradeNotFound(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/trades/99", nil)
	req.SetPathValue("id", "99")
	rec := httptest.NewRecorder()
	f.trade.GetTrade(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPositionsAndValue(t *testing.T) {
	f := newFixture(t)
	f.fund(t, trader, usdc, 1_000, 1)
	f.fund(t, trader, weth, 2, 2000)

	rec := get(f.position.ListPositions, "/api/positions?account="+trader.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Positions []domain.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Positions, 2)

	rec = get(f.position.PortfolioValue, "/api/positions/value?account="+trader.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, domain.Wad(5_000).String(), body["value"], "1000 USDC + 2 WETH at 2000")
}

func TestClosePositionEndpoint(t *testing.T) {
	f := newFixture(t)
	f.fund(t, trader, weth, 2, 2000)

	rec := postJSON(t, f.position.ClosePosition, "/api/positions/close", map[string]any{
		"caller":  trader.Hex(),
		"account": trader.Hex(),
		"token":   weth.Hex(),
		"amount":  domain.Wad(1).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, domain.Wad(1).String(), body["closed"])
}

func TestCreatePortfolioValidation(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(t, f.portfolio.CreatePortfolio, "/api/portfolios", map[string]any{
		"owner":               trader.Hex(),
		"name":                "uneven",
		"tokens":              []string{usdc.Hex(), weth.Hex()},
		"target_bps":          []int64{7000, 2000},
		"rebalance_frequency": "DAILY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "targets must sum to 10000")

	rec = postJSON(t, f.portfolio.CreatePortfolio, "/api/portfolios", map[string]any{
		"owner":               trader.Hex(),
		"name":                "core",
		"tokens":              []string{usdc.Hex(), weth.Hex()},
		"target_bps":          []int64{7000, 3000},
		"rebalance_frequency": "DAILY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p domain.Portfolio
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, int64(1), p.ID)
	assert.True(t, p.IsActive)
}

func TestRecommendationsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.fund(t, trader, usdc, 7_000, 1)
	f.fund(t, trader, weth, 2, 1500)

	rec := postJSON(t, f.portfolio.CreatePortfolio, "/api/portfolios", map[string]any{
		"owner":               trader.Hex(),
		"name":                "core",
		"tokens":              []string{usdc.Hex(), weth.Hex()},
		"target_bps":          []int64{5000, 5000},
		"rebalance_frequency": "MANUAL",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/portfolios/1/recommendations", nil)
	req.SetPathValue("id", "1")
	out := httptest.NewRecorder()
	f.portfolio.Recommendations(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	var listed struct {
		Recommendations []domain.RebalanceRecommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &listed))
	require.Len(t, listed.Recommendations, 2)
	// 7000 USDC vs 3000 WETH value: 70/30 against a 50/50 target.
	assert.Equal(t, int64(2000), listed.Recommendations[0].Priority)
	assert.False(t, listed.Recommendations[0].ShouldBuy)
	assert.True(t, listed.Recommendations[1].ShouldBuy)
}

func TestIntentEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(t, f.intent.ExecuteDCA, "/api/strategies/dca", map[string]any{
		"caller":            trader.Hex(),
		"account":           trader.Hex(),
		"token":             weth.Hex(),
		"amount_per_buy":    domain.Wad(100).String(),
		"frequency_seconds": 86_400,
		"total_purchases":   30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["intent_id"])

	rec = get(f.intent.ListIntents, "/api/strategies/intents?account="+trader.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Intents []domain.ScheduledIntent `json:"intents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Intents, 1)
	assert.Equal(t, domain.IntentDCA, listed.Intents[0].Kind)

	target := fmt.Sprintf("/api/strategies/intents/1?caller=%s&account=%s", trader.Hex(), trader.Hex())
	req := httptest.NewRequest(http.MethodDelete, target, nil)
	req.SetPathValue("id", "1")
	out := httptest.NewRecorder()
	f.intent.CancelIntent(out, req)
	assert.Equal(t, http.StatusOK, out.Code)
}

func TestAdminPauseOwnerOnly(t *testing.T) {
	f := newFixture(t)

	rec := putJSON(t, f.admin.SetPause, "/api/admin/pause", map[string]any{
		"caller": trader.Hex(),
		"paused": true,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = putJSON(t, f.admin.SetPause, "/api/admin/pause", map[string]any{
		"caller": owner.Hex(),
		"paused": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.engine.Admin().Paused())
}

func TestAdminPostPrice(t *testing.T) {
	f := newFixture(t)
	token := common.HexToAddress("0x4444444444444444444444444444444444444444")

	rec := postJSON(t, f.admin.PostPrice, "/api/admin/prices", map[string]any{
		"token": token.Hex(),
		"price": domain.Wad(42).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	price, _, err := f.prices.GetPrice(context.Background(), token)
	require.NoError(t, err)
	assert.Zero(t, price.Cmp(domain.Wad(42)))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.fund(t, trader, usdc, 10_000, 1)

	rec := postJSON(t, f.trade.ExecuteTrade, "/api/trades", tradeBody(2_000))
	require.Equal(t, http.StatusCreated, rec.Code)

	out := get(f.metrics.GetMetrics, "/api/metrics?account="+trader.Hex())
	require.Equal(t, http.StatusOK, out.Code)

	body := decodeBody(t, out)
	assert.Equal(t, float64(1), body["total_trades"])
	assert.Equal(t, float64(1), body["executed_trades"])
	assert.Equal(t, domain.Wad(2_000).String(), body["traded_volume"])
	assert.Equal(t, float64(2), body["active_positions"], "remaining USDC plus bought WETH")
}
