package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/metrics"
	"github.com/bobmcallan/screener/internal/models"
)

type fakePerformance struct {
	lastReq     models.PerformanceRequest
	lastFast    bool
	lastCompare models.CompareRequest
	clearedWith *string
	err         error
}

func (f *fakePerformance) AnalyzePerformance(ctx context.Context, req models.PerformanceRequest) (*models.PerformanceResult, error) {
	f.lastReq, f.lastFast = req, false
	return f.result(req)
}

func (f *fakePerformance) AnalyzePerformanceFast(ctx context.Context, req models.PerformanceRequest) (*models.PerformanceResult, error) {
	f.lastReq, f.lastFast = req, true
	return f.result(req)
}

func (f *fakePerformance) result(req models.PerformanceRequest) (*models.PerformanceResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.PerformanceResult{
		TopPerformers:    []models.PerformanceRecord{{Symbol: "AAPL", DisplayName: "Apple Inc", PerformancePct: 12.5}},
		BottomPerformers: []models.PerformanceRecord{},
		TotalAnalyzed:    1,
		Market:           req.Market,
		TopN:             req.TopN,
	}, nil
}

func (f *fakePerformance) CompareStocks(ctx context.Context, req models.CompareRequest) (*models.CompareResult, error) {
	f.lastCompare = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.CompareResult{
		Data:   []models.ComparePoint{{Date: "2024-01-02", Values: map[string]float64{"AAPL": 0}}},
		Series: []models.CompareSeries{{DataKey: "AAPL", Name: "AAPL"}},
	}, nil
}

func (f *fakePerformance) ClearCache(ctx context.Context, market string) models.ClearCacheResponse {
	f.clearedWith = &market
	return models.ClearCacheResponse{Success: true, Market: strings.ToUpper(market), Removed: 3}
}

func (f *fakePerformance) CacheStats(ctx context.Context) models.CacheStatsResponse {
	return models.CacheStatsResponse{
		CacheStats: models.CacheStats{Enabled: true, Backend: "redis", SizeInProcess: 2, TTLSeconds: 3600},
		Config:     models.ScreeningConfigView{Default: models.DefaultScreeningLimits(), Fast: models.FastScreeningLimits()},
	}
}

type fakeFluctuation struct {
	lastReq  models.FluctuationRequest
	lastFast bool
	err      error
}

func (f *fakeFluctuation) FindFluctuations(ctx context.Context, req models.FluctuationRequest) (*models.FluctuationResult, error) {
	f.lastReq, f.lastFast = req, false
	return f.result(req)
}

func (f *fakeFluctuation) FindFluctuationsFast(ctx context.Context, req models.FluctuationRequest) (*models.FluctuationResult, error) {
	f.lastReq, f.lastFast = req, true
	return f.result(req)
}

func (f *fakeFluctuation) result(req models.FluctuationRequest) (*models.FluctuationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.FluctuationResult{FoundStocks: []models.FluctuationSummary{}, Market: req.Market}, nil
}

func newTestServer(t *testing.T, secret string) (*Server, *fakePerformance, *fakeFluctuation) {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = secret
	perf := &fakePerformance{}
	fluct := &fakeFluctuation{}
	return newServer(cfg, common.NewSilentLogger(), perf, fluct, metrics.New()), perf, fluct
}

func do(t *testing.T, srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndVersion(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rr := do(t, srv, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(t, srv, http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"version"`)

	rr = do(t, srv, http.MethodPost, "/api/health", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPerformanceAnalysis(t *testing.T) {
	srv, perf, _ := newTestServer(t, "")

	rr := do(t, srv, http.MethodPost, "/api/performance/analysis",
		`{"market":"NASDAQ","start_date":"2024-01-01","end_date":"2024-03-31","top_n":5}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.False(t, perf.lastFast)
	assert.Equal(t, "NASDAQ", perf.lastReq.Market)
	assert.Equal(t, 5, perf.lastReq.TopN)

	var res models.PerformanceResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.TopPerformers, 1)
	assert.Equal(t, "AAPL", res.TopPerformers[0].Symbol)
	assert.Contains(t, rr.Body.String(), `"bottom_performers":[]`)
}

func TestPerformanceAnalysisFast_DefaultTopN(t *testing.T) {
	srv, perf, _ := newTestServer(t, "")

	rr := do(t, srv, http.MethodPost, "/api/performance/analysis/fast",
		`{"market":"KOSPI","start_date":"2024-01-01","end_date":"2024-03-31"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.True(t, perf.lastFast)
	assert.Equal(t, models.DefaultTopN, perf.lastReq.TopN)
}

func TestPerformanceAnalysis_BadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rr := do(t, srv, http.MethodGet, "/api/performance/analysis", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "POST", rr.Header().Get("Allow"))

	rr = do(t, srv, http.MethodPost, "/api/performance/analysis", `{"market":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), CodeValidation)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", models.NewValidationError("top_n", "must be between 1 and 50, got 99"), http.StatusBadRequest, CodeValidation},
		{"timeout", fmt.Errorf("%w after 2m0s", models.ErrAnalysisTimeout), http.StatusGatewayTimeout, CodeTimeout},
		{"internal", fmt.Errorf("fetch NASDAQ prices: boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, perf, fluct := newTestServer(t, "")
			perf.err = tt.err
			fluct.err = tt.err

			for _, path := range []string{"/api/performance/analysis", "/api/fluctuation/analysis/fast", "/api/stock/compare"} {
				rr := do(t, srv, http.MethodPost, path, `{"market":"NASDAQ"}`)
				assert.Equal(t, tt.status, rr.Code, path)

				var body ErrorResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.code, body.Code)
				if tt.status == http.StatusInternalServerError {
					assert.NotContains(t, body.Error, "boom")
				}
			}
		})
	}
}

func TestFluctuationAnalysis_Defaults(t *testing.T) {
	srv, _, fluct := newTestServer(t, "")

	rr := do(t, srv, http.MethodPost, "/api/fluctuation/analysis",
		`{"country":"KR","market":"KOSPI","start_date":"2024-01-01","end_date":"2024-03-31","rebound_rate":30}`)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.False(t, fluct.lastFast)
	assert.Equal(t, 5, fluct.lastReq.DeclinePeriod)
	assert.Equal(t, -20.0, fluct.lastReq.DeclineRate)
	assert.Equal(t, 20, fluct.lastReq.ReboundPeriod)
	assert.Equal(t, 30.0, fluct.lastReq.ReboundRate)
	assert.Contains(t, rr.Body.String(), `"found_stocks":[]`)
}

func TestStockCompare(t *testing.T) {
	srv, perf, _ := newTestServer(t, "")

	rr := do(t, srv, http.MethodPost, "/api/stock/compare",
		`{"tickers":["AAPL","005930"],"start_date":"2024-01-01","end_date":"2024-03-31"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"AAPL", "005930"}, perf.lastCompare.Tickers)
	assert.JSONEq(t, `{"data":[{"date":"2024-01-02","AAPL":0}],"series":[{"dataKey":"AAPL","name":"AAPL"}]}`, rr.Body.String())
}

func TestCacheStats(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rr := do(t, srv, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var stats models.CacheStatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.True(t, stats.Enabled)
	assert.Equal(t, "redis", stats.Backend)
	assert.Equal(t, 50, stats.Config.Default.ChunkSize)
	assert.Equal(t, 20, stats.Config.Fast.MaxTopN)
}

func TestCacheClear_Open(t *testing.T) {
	srv, perf, _ := newTestServer(t, "")

	rr := do(t, srv, http.MethodDelete, "/api/cache/clear?market=kospi", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, perf.clearedWith)
	assert.Equal(t, "kospi", *perf.clearedWith)
	assert.JSONEq(t, `{"success":true,"market":"KOSPI","removed":3}`, rr.Body.String())

	rr = do(t, srv, http.MethodPost, "/api/cache/clear", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "", *perf.clearedWith)

	rr = do(t, srv, http.MethodGet, "/api/cache/clear", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	srv.metrics.CacheResult("memory", "hit")

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `screener_cache_requests_total{result="hit",tier="memory"} 1`)
}
