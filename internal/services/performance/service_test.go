package performance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/screener/internal/cache"
	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/models"
	"github.com/bobmcallan/screener/internal/storage/redisstore"
)

// --- fakes ---

type fakeUniverse struct {
	tickers map[models.Market][]models.TickerRecord
}

func (u *fakeUniverse) ListTickers(ctx context.Context, market models.Market) []models.TickerRecord {
	return u.tickers[market]
}

func (u *fakeUniverse) Refresh(ctx context.Context, market models.Market) []models.TickerRecord {
	return u.tickers[market]
}

type fakeFetcher struct {
	mu         sync.Mutex
	batchCalls int
	limits     []models.ScreeningLimits
	one        map[string]models.PriceSeries
	oneMarkets map[string]models.Market
	batch      func(ctx context.Context, symbols []string) (*models.BatchResult, error)
}

func (f *fakeFetcher) FetchOne(ctx context.Context, market models.Market, symbol string, from, to time.Time) (models.PriceSeries, error) {
	f.mu.Lock()
	if f.oneMarkets == nil {
		f.oneMarkets = make(map[string]models.Market)
	}
	f.oneMarkets[symbol] = market
	f.mu.Unlock()

	s, ok := f.one[symbol]
	if !ok {
		return models.PriceSeries{}, errors.New("not found")
	}
	return s, nil
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, market models.Market, symbols []string, from, to time.Time, limits models.ScreeningLimits) (*models.BatchResult, error) {
	f.mu.Lock()
	f.batchCalls++
	f.limits = append(f.limits, limits)
	f.mu.Unlock()

	if f.batch != nil {
		return f.batch(ctx, symbols)
	}
	res := &models.BatchResult{}
	for i, sym := range symbols {
		res.Series = append(res.Series, twoPoint(sym, 100, 100+float64(i*10)))
	}
	return res, nil
}

func usTickers(symbols ...string) []models.TickerRecord {
	out := make([]models.TickerRecord, len(symbols))
	for i, s := range symbols {
		out[i] = models.TickerRecord{Symbol: s, DisplayName: s + " Inc"}
	}
	return out
}

func testConfig() Config {
	return Config{
		Default:        models.DefaultScreeningLimits(),
		Fast:           models.FastScreeningLimits(),
		RequestTimeout: 5 * time.Second,
		FetchTimeout:   time.Second,
		MaxRangeDays:   365,
		Bounds:         DefaultOutlierBounds(),
	}
}

func newTestService(u *fakeUniverse, f *fakeFetcher, c *cache.ResultCache) *Service {
	if c == nil {
		c = cache.New(context.Background())
	}
	return NewService(u, f, c, testConfig(), common.NewSilentLogger(), nil)
}

func validRequest() models.PerformanceRequest {
	return models.PerformanceRequest{Market: "NASDAQ", StartDate: "2024-01-01", EndDate: "2024-03-31", TopN: 2}
}

// --- tests ---

func TestAnalyzePerformance_RanksUniverse(t *testing.T) {
	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketNASDAQ: usTickers("A", "B", "C", "D"),
	}}
	svc := newTestService(u, &fakeFetcher{}, nil)

	res, err := svc.AnalyzePerformance(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalAnalyzed)
	assert.Equal(t, "2024-01-01 ~ 2024-03-31", res.AnalysisPeriod)
	assert.Equal(t, "NASDAQ", res.Market)
	assert.False(t, res.Cached)

	require.Len(t, res.TopPerformers, 2)
	assert.Equal(t, "D", res.TopPerformers[0].Symbol)
	assert.Equal(t, "D Inc", res.TopPerformers[0].DisplayName)
	assert.InDelta(t, 30.0, res.TopPerformers[0].PerformancePct, 1e-9)
	assert.Equal(t, "A", res.BottomPerformers[0].Symbol)
}

func TestAnalyzePerformance_SecondCallServedFromCache(t *testing.T) {
	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketNASDAQ: usTickers("A", "B"),
	}}
	f := &fakeFetcher{}
	svc := newTestService(u, f, nil)

	first, err := svc.AnalyzePerformance(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := svc.AnalyzePerformance(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, f.batchCalls)
	assert.True(t, second.Cached)
	assert.Equal(t, first.TopPerformers, second.TopPerformers)
}

func TestAnalyzePerformance_Validation(t *testing.T) {
	f := &fakeFetcher{}
	svc := newTestService(&fakeUniverse{}, f, nil)

	tests := []struct {
		name  string
		mut   func(*models.PerformanceRequest)
		field string
	}{
		{"missing market", func(r *models.PerformanceRequest) { r.Market = " " }, "market"},
		{"bad start", func(r *models.PerformanceRequest) { r.StartDate = "2024/01/01" }, "start_date"},
		{"end before start", func(r *models.PerformanceRequest) { r.EndDate = "2023-12-31" }, "end_date"},
		{"range too long", func(r *models.PerformanceRequest) { r.EndDate = "2025-06-01" }, "end_date"},
		{"top_n zero", func(r *models.PerformanceRequest) { r.TopN = 0 }, "top_n"},
		{"top_n too large", func(r *models.PerformanceRequest) { r.TopN = 51 }, "top_n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mut(&req)
			_, err := svc.AnalyzePerformance(context.Background(), req)

			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Equal(t, 0, f.batchCalls, "no upstream work for invalid input")
}

func TestAnalyzePerformance_EmptyUniverse(t *testing.T) {
	f := &fakeFetcher{}
	svc := newTestService(&fakeUniverse{}, f, nil)

	req := validRequest()
	req.Market = "TSX"
	res, err := svc.AnalyzePerformance(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, res.TopPerformers)
	assert.Empty(t, res.BottomPerformers)
	assert.Equal(t, 0, res.TotalAnalyzed)
	assert.Equal(t, 0, f.batchCalls)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"top_performers":[]`)
}

func TestAnalyzePerformance_NoUsableSeriesNotCached(t *testing.T) {
	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketNYSE: usTickers("A"),
	}}
	f := &fakeFetcher{batch: func(ctx context.Context, symbols []string) (*models.BatchResult, error) {
		return &models.BatchResult{}, nil
	}}
	svc := newTestService(u, f, nil)

	req := validRequest()
	req.Market = "nyse"
	for i := 0; i < 2; i++ {
		res, err := svc.AnalyzePerformance(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 0, res.TotalAnalyzed)
	}
	assert.Equal(t, 2, f.batchCalls)
}

func TestAnalyzePerformanceFast_UsesFastLimitsWithoutMutatingRequest(t *testing.T) {
	symbols := make([]string, 30)
	for i := range symbols {
		symbols[i] = string(rune('A'+i%26)) + string(rune('a'+i/26))
	}
	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketNASDAQ: usTickers(symbols...),
	}}
	f := &fakeFetcher{}
	svc := newTestService(u, f, nil)

	req := validRequest()
	req.TopN = 40

	fast, err := svc.AnalyzePerformanceFast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 40, req.TopN)
	assert.Equal(t, 20, fast.TopN)
	assert.Len(t, fast.TopPerformers, 20)
	assert.Equal(t, models.FastScreeningLimits(), f.limits[0])

	regular, err := svc.AnalyzePerformance(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, regular.Cached, "fast and regular results are cached separately")
	assert.Len(t, regular.TopPerformers, 30)
	assert.Equal(t, models.DefaultScreeningLimits(), f.limits[1])
}

func TestAnalyzePerformance_Timeout(t *testing.T) {
	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketNASDAQ: usTickers("A"),
	}}
	f := &fakeFetcher{batch: func(ctx context.Context, symbols []string) (*models.BatchResult, error) {
		<-ctx.Done()
		return &models.BatchResult{Series: []models.PriceSeries{twoPoint("A", 1, 2)}}, ctx.Err()
	}}
	c := cache.New(context.Background())
	svc := NewService(u, f, c, Config{
		Default:        models.DefaultScreeningLimits(),
		Fast:           models.FastScreeningLimits(),
		RequestTimeout: 30 * time.Millisecond,
		MaxRangeDays:   365,
	}, common.NewSilentLogger(), nil)

	_, err := svc.AnalyzePerformance(context.Background(), validRequest())
	assert.ErrorIs(t, err, models.ErrAnalysisTimeout)
	assert.Equal(t, 0, c.Stats(context.Background()).SizeInProcess, "partial results discarded")
}

func TestAnalyzePerformance_DegradedCacheStillServes(t *testing.T) {
	mr := miniredis.RunT(t)
	backend := redisstore.NewStore(common.RedisConfig{Addr: mr.Addr(), DialTimeout: "100ms"}, common.NewSilentLogger())
	c := cache.New(context.Background(), cache.WithBackend(backend))
	mr.Close()

	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketNASDAQ: usTickers("A", "B"),
	}}
	f := &fakeFetcher{}
	svc := newTestService(u, f, c)

	for i := 0; i < 3; i++ {
		res, err := svc.AnalyzePerformance(context.Background(), validRequest())
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalAnalyzed)
	}

	stats := svc.CacheStats(context.Background())
	assert.False(t, stats.Enabled)
	assert.Equal(t, 1, f.batchCalls, "in-process tier keeps serving")
}

func TestCompareStocks(t *testing.T) {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketKOSDAQ: {{Symbol: "035720", DisplayName: "Kakao"}},
	}}
	f := &fakeFetcher{one: map[string]models.PriceSeries{
		"035720": models.NewPriceSeries("035720", []models.PricePoint{
			{Date: d, Close: 50000},
			{Date: d.AddDate(0, 0, 1), Close: 55000},
		}),
		"AAPL": models.NewPriceSeries("AAPL", []models.PricePoint{
			{Date: d.AddDate(0, 0, 1), Close: 200},
			{Date: d.AddDate(0, 0, 2), Close: 190},
		}),
	}}
	svc := newTestService(u, f, nil)

	res, err := svc.CompareStocks(context.Background(), models.CompareRequest{
		Tickers:   []string{"035720", "aapl", "MISSING", "AAPL"},
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
	})
	require.NoError(t, err)

	assert.Equal(t, models.MarketKOSDAQ, f.oneMarkets["035720"])
	assert.Equal(t, []models.CompareSeries{
		{DataKey: "035720", Name: "Kakao"},
		{DataKey: "AAPL", Name: "AAPL"},
	}, res.Series)

	require.Len(t, res.Data, 3)
	assert.Equal(t, "2024-01-02", res.Data[0].Date)
	assert.Equal(t, map[string]float64{"035720": 0}, res.Data[0].Values)
	assert.Equal(t, map[string]float64{"035720": 10, "AAPL": 0}, res.Data[1].Values)
	assert.Equal(t, map[string]float64{"AAPL": -5}, res.Data[2].Values)

	again, err := svc.CompareStocks(context.Background(), models.CompareRequest{
		Tickers:   []string{"035720", "aapl", "MISSING", "AAPL"},
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
	})
	require.NoError(t, err)
	assert.Equal(t, res.Data, again.Data, "cached comparison decodes to the same points")
}

func TestCompareStocks_Validation(t *testing.T) {
	svc := newTestService(&fakeUniverse{}, &fakeFetcher{}, nil)

	_, err := svc.CompareStocks(context.Background(), models.CompareRequest{StartDate: "2024-01-01", EndDate: "2024-01-02"})
	assert.True(t, models.IsValidationError(err))

	many := make([]string, 11)
	for i := range many {
		many[i] = string(rune('A' + i))
	}
	_, err = svc.CompareStocks(context.Background(), models.CompareRequest{Tickers: many, StartDate: "2024-01-01", EndDate: "2024-01-02"})
	assert.True(t, models.IsValidationError(err))
}

func TestClearCacheAndStats(t *testing.T) {
	u := &fakeUniverse{tickers: map[models.Market][]models.TickerRecord{
		models.MarketNASDAQ: usTickers("A"),
		models.MarketNYSE:   usTickers("B"),
	}}
	svc := newTestService(u, &fakeFetcher{}, nil)
	ctx := context.Background()

	req := validRequest()
	_, err := svc.AnalyzePerformance(ctx, req)
	require.NoError(t, err)
	req.Market = "NYSE"
	_, err = svc.AnalyzePerformance(ctx, req)
	require.NoError(t, err)

	stats := svc.CacheStats(ctx)
	assert.Equal(t, 2, stats.SizeInProcess)
	assert.Equal(t, "5s", stats.Config.RequestTimeout)
	assert.Equal(t, 25, stats.Config.Fast.ChunkSize)

	resp := svc.ClearCache(ctx, "nasdaq")
	assert.True(t, resp.Success)
	assert.Equal(t, "NASDAQ", resp.Market)
	assert.Equal(t, 1, resp.Removed)

	resp = svc.ClearCache(ctx, "")
	assert.Equal(t, 1, resp.Removed)
}
