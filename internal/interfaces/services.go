package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/screener/internal/models"
)

// UniverseProvider resolves a market to its listed tickers
type UniverseProvider interface {
	// ListTickers never fails; unknown markets and upstream failures yield an empty list
	ListTickers(ctx context.Context, market models.Market) []models.TickerRecord

	// Refresh drops the cached listing and resolves it again
	Refresh(ctx context.Context, market models.Market) []models.TickerRecord
}

// ResultCache caches computed results keyed on request parameters
type ResultCache interface {
	Get(ctx context.Context, key CacheKey, dest any) bool
	Set(ctx context.Context, key CacheKey, value any, ttl time.Duration)
	Clear(ctx context.Context, market string) int
	Stats(ctx context.Context) models.CacheStats
	TTL() time.Duration
}

// CacheKey is implemented by cache.Key; kept here so services depend on the contract only
type CacheKey interface {
	String() string
}

// PerformanceService ranks a market's performers and administers the result cache
type PerformanceService interface {
	AnalyzePerformance(ctx context.Context, req models.PerformanceRequest) (*models.PerformanceResult, error)
	AnalyzePerformanceFast(ctx context.Context, req models.PerformanceRequest) (*models.PerformanceResult, error)
	CompareStocks(ctx context.Context, req models.CompareRequest) (*models.CompareResult, error)
	ClearCache(ctx context.Context, market string) models.ClearCacheResponse
	CacheStats(ctx context.Context) models.CacheStatsResponse
}

// FluctuationService finds decline-then-rebound episodes across a market
type FluctuationService interface {
	FindFluctuations(ctx context.Context, req models.FluctuationRequest) (*models.FluctuationResult, error)
	FindFluctuationsFast(ctx context.Context, req models.FluctuationRequest) (*models.FluctuationResult, error)
}
