package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/screener/internal/models"
)

var nasdaqRequest = models.PerformanceRequest{
	Market:    "NASDAQ",
	StartDate: "2024-01-02",
	EndDate:   "2024-01-04",
	TopN:      2,
}

func TestPerformance_CachedAcrossRestart(t *testing.T) {
	env := newEnv(t)

	status, body := env.do(http.MethodPost, "/api/performance/analysis", nasdaqRequest)
	require.Equal(t, http.StatusOK, status, string(body))

	var first models.PerformanceResult
	env.decode(body, &first)
	assert.False(t, first.Cached)
	assert.Equal(t, 3, first.TotalAnalyzed)
	require.Len(t, first.TopPerformers, 2)
	assert.Equal(t, "CCC", first.TopPerformers[0].Symbol)
	require.Len(t, first.BottomPerformers, 2)
	assert.Equal(t, "BBB", first.BottomPerformers[0].Symbol)

	env.restart()

	status, body = env.do(http.MethodPost, "/api/performance/analysis", nasdaqRequest)
	require.Equal(t, http.StatusOK, status)

	var second models.PerformanceResult
	env.decode(body, &second)
	assert.True(t, second.Cached, "served from Redis after restart")
	assert.Equal(t, first.TopPerformers, second.TopPerformers)
	assert.Equal(t, int32(1), env.upstreams.sparkCalls.Load())
}

func TestPerformance_Validation(t *testing.T) {
	env := newEnv(t)

	req := nasdaqRequest
	req.TopN = 51
	status, body := env.do(http.MethodPost, "/api/performance/analysis", req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "top_n")
	assert.Equal(t, int32(0), env.upstreams.sparkCalls.Load())
}

func TestFluctuation_Domestic(t *testing.T) {
	env := newEnv(t)

	req := models.DefaultFluctuationRequest()
	req.Country = "KR"
	req.Market = "KOSPI"
	req.StartDate = "2024-01-01"
	req.EndDate = "2024-01-09"
	req.ReboundPeriod = 3

	status, body := env.do(http.MethodPost, "/api/fluctuation/analysis", req)
	require.Equal(t, http.StatusOK, status, string(body))

	var res models.FluctuationResult
	env.decode(body, &res)
	assert.Equal(t, 2, res.TotalAnalyzed)
	require.Len(t, res.FoundStocks, 1)
	assert.Equal(t, "005930", res.FoundStocks[0].Symbol)
	assert.Equal(t, "Samsung Electronics", res.FoundStocks[0].DisplayName)
	assert.Equal(t, 2, res.FoundStocks[0].OccurrenceCount)
	assert.Equal(t, int32(2), env.upstreams.eodCalls.Load())
}

func TestCache_StatsAndClear(t *testing.T) {
	env := newEnv(t)

	status, _ := env.do(http.MethodPost, "/api/performance/analysis", nasdaqRequest)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, status)

	var stats models.CacheStatsResponse
	env.decode(body, &stats)
	assert.True(t, stats.Enabled)
	assert.Equal(t, "redis", stats.Backend)
	assert.Equal(t, 1, stats.SizePersistent)

	status, body = env.do(http.MethodDelete, "/api/cache/clear?market=NASDAQ", nil)
	require.Equal(t, http.StatusOK, status)

	var cleared models.ClearCacheResponse
	env.decode(body, &cleared)
	assert.Equal(t, 1, cleared.Removed)

	status, body = env.do(http.MethodPost, "/api/performance/analysis", nasdaqRequest)
	require.Equal(t, http.StatusOK, status)

	var again models.PerformanceResult
	env.decode(body, &again)
	assert.False(t, again.Cached)
	assert.Equal(t, int32(2), env.upstreams.sparkCalls.Load())
}
