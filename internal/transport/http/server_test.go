package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtex/internal/agent"
	"virtex/internal/engine"
	"virtex/internal/market"
	"virtex/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng, err := engine.New(engine.Config{Symbol: "SIM-USD"})
	require.NoError(t, err)
	s, err := NewServer(Config{Engine: eng, ReportDir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func do(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func seriesBody(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"timestamp": 1_700_000_000 + int64(i)*86400,
			"close":     100 + float64(i),
		}
	}
	return out
}

func TestServerStatus(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodGet, "/api/engine/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var st engine.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "SIM-USD", st.Config.Symbol)
	assert.False(t, st.Running)
}

func TestServerConfigure(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodPost, "/api/engine/configure", map[string]any{
		"initial_balance": 250_000,
		"mode":            "training",
	})
	require.Equal(t, http.StatusOK, w.Code)

	st := s.eng.Status()
	assert.Equal(t, 250_000.0, st.Account.Balance)
	assert.Equal(t, engine.ModeTraining, st.Config.Mode)
}

func TestServerIngestAndSimulate(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodPost, "/api/engine/ingest", seriesBody(30))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ingested":30`)

	w = do(s, http.MethodPost, "/api/engine/simulate", map[string]any{"mode": "simulation"})
	require.Equal(t, http.StatusOK, w.Code)
	var res engine.SimulationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)

	w = do(s, http.MethodGet, "/api/engine/context/simulation/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
}

func TestServerSimulateEmptyBody(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodPost, "/api/engine/ingest", seriesBody(30))
	require.Equal(t, http.StatusOK, w.Code)

	// 不带请求体等价于全默认参数
	w = do(s, http.MethodPost, "/api/engine/simulate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestServerSimulateInsufficientHistory(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodPost, "/api/engine/ingest", seriesBody(5))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodPost, "/api/engine/simulate", map[string]any{"mode": "simulation"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestServerOrders(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodPost, "/api/engine/orders", map[string]any{"side": "long", "quantity": 5})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(s, http.MethodPost, "/api/engine/orders", map[string]any{"side": "diagonal", "quantity": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodPost, "/api/engine/orders", map[string]any{"side": "long"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodGet, "/api/engine/status", nil)
	assert.Contains(t, w.Body.String(), `"pending_orders"`)
}

func TestServerStrategyAndRobot(t *testing.T) {
	s := newTestServer(t)

	// 未选策略时启用机器人是状态冲突
	active := true
	w := do(s, http.MethodPost, "/api/engine/robot", map[string]any{"active": &active})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(s, http.MethodPost, "/api/engine/strategy", map[string]any{"id": "vector"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodPost, "/api/engine/robot", map[string]any{"active": &active})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.eng.Status().Robot)

	w = do(s, http.MethodPost, "/api/engine/strategy", map[string]any{"id": "martingale"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerSpeedAndLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodPost, "/api/engine/speed", map[string]any{"multiplier": 4})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodPost, "/api/engine/speed", map[string]any{"multiplier": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodPost, "/api/engine/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodPost, "/api/engine/alert/clear", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerReport(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodPost, "/api/engine/ingest", seriesBody(30))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodGet, "/api/engine/report", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "历史回放")
}

func TestServerArchiveReads(t *testing.T) {
	eng, err := engine.New(engine.Config{Symbol: "SIM-USD"})
	require.NoError(t, err)
	st, err := store.New(filepath.Join(t.TempDir(), "virtex.db"), "SIM-USD")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	s, err := NewServer(Config{Engine: eng, Archive: st, ReportDir: t.TempDir()})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, st.RecordTrade(engine.Trade{
		OrderID: "ord-1", Symbol: "SIM-USD", Side: engine.SideLong,
		Kind: engine.OrderMarket, Price: 100, Quantity: 2, FilledAt: now,
	}))
	require.NoError(t, st.RecordEquity(market.EquityPoint{Time: now, Equity: 1_000_200}))
	require.NoError(t, st.RecordAlert(engine.Alert{
		Kind: engine.AlertLiquidation, Title: "强制平仓", Message: "margin", Time: now,
	}))
	require.NoError(t, st.SaveSession("simulation", now.Add(-time.Hour),
		engine.SessionStats{Trades: 1, Wins: 1, RealizedPnL: 42}, 1_000_042,
		agent.ActiveStrategy{ID: agent.StrategyVector, Name: "Vector"}, nil))

	t.Run("最近成交", func(t *testing.T) {
		w := do(s, http.MethodGet, "/api/engine/trades/recent?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ord-1")
	})

	t.Run("limit非法报400", func(t *testing.T) {
		w := do(s, http.MethodGet, "/api/engine/trades/recent?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("权益区间", func(t *testing.T) {
		from := now.Add(-time.Minute).Format(time.RFC3339)
		w := do(s, http.MethodGet, "/api/engine/equity/range?from="+from, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "1000200")
	})

	t.Run("时间参数非法报400", func(t *testing.T) {
		w := do(s, http.MethodGet, "/api/engine/equity/range?from=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("告警归档", func(t *testing.T) {
		w := do(s, http.MethodGet, "/api/engine/alerts", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "liquidation")
	})

	t.Run("会话归档", func(t *testing.T) {
		w := do(s, http.MethodGet, "/api/engine/sessions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Vector")
	})

	t.Run("未配归档库时返回空", func(t *testing.T) {
		bare := newTestServer(t)
		for _, path := range []string{
			"/api/engine/trades/recent", "/api/engine/equity/range",
			"/api/engine/alerts", "/api/engine/sessions",
		} {
			w := do(bare, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
	})
}

func TestServerEquityAndTrades(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/engine/trades", "/api/engine/equity"} {
		w := do(s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, fmt.Sprintf("path=%s", path))
	}
}
