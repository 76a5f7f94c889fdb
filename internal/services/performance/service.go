// Package performance ranks a market's best and worst performers over a period
// and compares the cumulative returns of individual stocks.
package performance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bobmcallan/screener/internal/cache"
	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/metrics"
	"github.com/bobmcallan/screener/internal/models"
)

// MaxCompareTickers bounds a comparison request.
const MaxCompareTickers = 10

// Config holds the analysis settings of the service
type Config struct {
	Default        models.ScreeningLimits
	Fast           models.ScreeningLimits
	RequestTimeout time.Duration
	FetchTimeout   time.Duration
	MaxRangeDays   int
	Bounds         OutlierBounds
}

// ConfigFromCommon extracts the service settings from the application config
func ConfigFromCommon(cfg *common.Config) Config {
	return Config{
		Default:        cfg.Screening.Default.Normalize(),
		Fast:           cfg.Screening.Fast.Normalize(),
		RequestTimeout: cfg.Screening.GetRequestTimeout(),
		FetchTimeout:   cfg.Fetch.GetRequestTimeout(),
		MaxRangeDays:   cfg.Screening.MaxRangeDays,
		Bounds:         OutlierBounds{Min: cfg.Screening.OutlierMin, Max: cfg.Screening.OutlierMax},
	}
}

// Service implements PerformanceService
type Service struct {
	universe interfaces.UniverseProvider
	fetcher  interfaces.PriceFetcher
	cache    interfaces.ResultCache
	config   Config
	logger   *common.Logger
	metrics  *metrics.Metrics
}

// NewService creates a new performance service. m may be nil.
func NewService(
	universe interfaces.UniverseProvider,
	fetcher interfaces.PriceFetcher,
	resultCache interfaces.ResultCache,
	config Config,
	logger *common.Logger,
	m *metrics.Metrics,
) *Service {
	if config.Bounds == (OutlierBounds{}) {
		config.Bounds = DefaultOutlierBounds()
	}
	return &Service{
		universe: universe,
		fetcher:  fetcher,
		cache:    resultCache,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

// AnalyzePerformance ranks the market under the default limits.
func (s *Service) AnalyzePerformance(ctx context.Context, req models.PerformanceRequest) (*models.PerformanceResult, error) {
	return s.analyze(ctx, req, s.config.Default, "performance")
}

// AnalyzePerformanceFast ranks the market under the fast limits; topN is capped
// by the fast limits without altering the request.
func (s *Service) AnalyzePerformanceFast(ctx context.Context, req models.PerformanceRequest) (*models.PerformanceResult, error) {
	return s.analyze(ctx, req, s.config.Fast, "performance_fast")
}

func (s *Service) validate(req models.PerformanceRequest) (models.DateRange, error) {
	if strings.TrimSpace(req.Market) == "" {
		return models.DateRange{}, models.NewValidationError("market", "is required")
	}
	dr, err := models.ParseDateRange(req.StartDate, req.EndDate, s.config.MaxRangeDays)
	if err != nil {
		return models.DateRange{}, err
	}
	if req.TopN < 1 || req.TopN > s.config.Default.MaxTopN {
		return models.DateRange{}, models.NewValidationError("top_n", "must be between 1 and %d, got %d", s.config.Default.MaxTopN, req.TopN)
	}
	return dr, nil
}

func (s *Service) analyze(ctx context.Context, req models.PerformanceRequest, limits models.ScreeningLimits, operation string) (*models.PerformanceResult, error) {
	dr, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	market := models.ParseMarket(req.Market)
	topN := req.TopN
	if topN > limits.MaxTopN {
		topN = limits.MaxTopN
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	start := time.Now()

	result := &models.PerformanceResult{
		TopPerformers:    []models.PerformanceRecord{},
		BottomPerformers: []models.PerformanceRecord{},
		AnalysisPeriod:   dr.String(),
		Market:           string(market),
		TopN:             topN,
		Limits:           limits,
	}

	tickers := s.universe.ListTickers(ctx, market)
	if err := s.checkTimeout(ctx); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		s.logger.Info().Str("market", string(market)).Msg("Empty universe, nothing to analyze")
		return result, nil
	}

	key := cache.NewKey(cache.PrefixPerformance, string(market), map[string]any{
		"start_date":  dr.Start.Format(models.DateLayout),
		"end_date":    dr.End.Format(models.DateLayout),
		"top_n":       topN,
		"max_tickers": limits.MaxTickers,
		"chunk_size":  limits.ChunkSize,
		"max_chunks":  limits.MaxChunks,
	})

	var cached models.PerformanceResult
	if s.cache.Get(ctx, key, &cached) {
		s.logger.Info().Str("market", string(market)).Str("operation", operation).Msg("Serving cached performance")
		cached.Cached = true
		return &cached, nil
	}

	symbols, names := splitTickers(tickers)

	s.logger.Info().
		Str("market", string(market)).
		Str("period", result.AnalysisPeriod).
		Int("top_n", topN).
		Int("universe", len(symbols)).
		Str("operation", operation).
		Msg("Performance analysis started")

	batch, err := s.fetcher.FetchBatch(ctx, market, symbols, dr.Start, dr.End, limits)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, s.timeoutError(market, operation)
		}
		return nil, fmt.Errorf("fetch %s prices: %w", market, err)
	}

	records := ComputeRecords(batch.Series, names, s.config.Bounds)
	result.TopPerformers, result.BottomPerformers = Rank(records, topN)
	result.TotalAnalyzed = len(records)

	if err := s.checkTimeout(ctx); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.metrics.ObserveAnalysis(operation, elapsed)

	if result.TotalAnalyzed > 0 {
		s.cache.Set(ctx, key, result, 0)
	}

	s.logger.Info().
		Str("market", string(market)).
		Int("analyzed", result.TotalAnalyzed).
		Int("skipped_items", batch.Skipped()).
		Bool("truncated", batch.Truncated).
		Dur("elapsed", elapsed).
		Msg("Performance analysis complete")

	return result, nil
}

// CompareStocks returns the cumulative return of each ticker over the period,
// one point per date on which any ticker traded.
func (s *Service) CompareStocks(ctx context.Context, req models.CompareRequest) (*models.CompareResult, error) {
	tickers, err := validateCompareTickers(req.Tickers)
	if err != nil {
		return nil, err
	}
	dr, err := models.ParseDateRange(req.StartDate, req.EndDate, s.config.MaxRangeDays)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	key := cache.NewKey(cache.PrefixCompare, "", map[string]any{
		"tickers":    tickers,
		"start_date": dr.Start.Format(models.DateLayout),
		"end_date":   dr.End.Format(models.DateLayout),
	})

	var cached models.CompareResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	result := &models.CompareResult{
		Data:   []models.ComparePoint{},
		Series: []models.CompareSeries{},
	}
	byDate := make(map[string]map[string]float64)

	for _, ticker := range tickers {
		market, name := s.resolveCompareTicker(ctx, ticker)

		series, err := s.fetcher.FetchOne(ctx, market, ticker, dr.Start, dr.End)
		if timeoutErr := s.checkTimeout(ctx); timeoutErr != nil {
			return nil, timeoutErr
		}
		if err != nil || series.IsEmpty() {
			s.logger.Warn().Str("ticker", ticker).Str("market", string(market)).Err(err).Msg("No comparison data, omitting ticker")
			continue
		}

		returns := CumulativeReturns(series)
		for i, p := range series.Points {
			date := p.Date.Format(models.DateLayout)
			if byDate[date] == nil {
				byDate[date] = make(map[string]float64)
			}
			byDate[date][ticker] = returns[i]
		}
		result.Series = append(result.Series, models.CompareSeries{DataKey: ticker, Name: name})
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		result.Data = append(result.Data, models.ComparePoint{Date: d, Values: byDate[d]})
	}

	if len(result.Series) > 0 {
		s.cache.Set(ctx, key, result, 0)
	}

	return result, nil
}

func validateCompareTickers(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	tickers := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tickers = append(tickers, t)
	}
	if len(tickers) == 0 {
		return nil, models.NewValidationError("tickers", "at least one ticker is required")
	}
	if len(tickers) > MaxCompareTickers {
		return nil, models.NewValidationError("tickers", "at most %d tickers can be compared, got %d", MaxCompareTickers, len(tickers))
	}
	return tickers, nil
}

// resolveCompareTicker routes six-digit codes to the domestic market that
// lists them and everything else to the foreign chart source.
func (s *Service) resolveCompareTicker(ctx context.Context, ticker string) (models.Market, string) {
	if !isDomesticCode(ticker) {
		return models.MarketNASDAQ, ticker
	}
	for _, market := range []models.Market{models.MarketKOSPI, models.MarketKOSDAQ} {
		for _, rec := range s.universe.ListTickers(ctx, market) {
			if rec.Symbol == ticker {
				name := rec.DisplayName
				if name == "" {
					name = ticker
				}
				return market, name
			}
		}
	}
	return models.MarketKOSPI, ticker
}

func isDomesticCode(ticker string) bool {
	if len(ticker) != 6 {
		return false
	}
	for _, r := range ticker {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ClearCache removes cached results of a market, or all results when market is empty.
func (s *Service) ClearCache(ctx context.Context, market string) models.ClearCacheResponse {
	name := ""
	if strings.TrimSpace(market) != "" {
		name = string(models.ParseMarket(market))
	}
	removed := s.cache.Clear(ctx, name)
	return models.ClearCacheResponse{Success: true, Market: name, Removed: removed}
}

// CacheStats reports the cache state and the active screening limits.
func (s *Service) CacheStats(ctx context.Context) models.CacheStatsResponse {
	return models.CacheStatsResponse{
		CacheStats: s.cache.Stats(ctx),
		Config: models.ScreeningConfigView{
			Default:        s.config.Default,
			Fast:           s.config.Fast,
			RequestTimeout: s.config.RequestTimeout.String(),
			FetchTimeout:   s.config.FetchTimeout.String(),
		},
	}
}

func (s *Service) checkTimeout(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", models.ErrAnalysisTimeout, s.config.RequestTimeout)
	}
	return ctx.Err()
}

func (s *Service) timeoutError(market models.Market, operation string) error {
	s.logger.Warn().
		Str("market", string(market)).
		Str("operation", operation).
		Dur("timeout", s.config.RequestTimeout).
		Msg("Analysis timed out, discarding partial results")
	return fmt.Errorf("%w after %s", models.ErrAnalysisTimeout, s.config.RequestTimeout)
}

func splitTickers(tickers []models.TickerRecord) ([]string, map[string]string) {
	symbols := make([]string, 0, len(tickers))
	names := make(map[string]string, len(tickers))
	for _, t := range tickers {
		symbols = append(symbols, t.Symbol)
		names[t.Symbol] = t.DisplayName
	}
	return symbols, names
}

var _ interfaces.PerformanceService = (*Service)(nil)
