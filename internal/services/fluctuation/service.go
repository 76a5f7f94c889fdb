// Package fluctuation finds decline-then-rebound episodes across a market.
package fluctuation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/screener/internal/cache"
	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/metrics"
	"github.com/bobmcallan/screener/internal/models"
)

// Config holds the analysis settings of the service
type Config struct {
	Default        models.ScreeningLimits
	Fast           models.ScreeningLimits
	RequestTimeout time.Duration
	MaxRangeDays   int
}

// ConfigFromCommon extracts the service settings from the application config
func ConfigFromCommon(cfg *common.Config) Config {
	return Config{
		Default:        cfg.Screening.Default.Normalize(),
		Fast:           cfg.Screening.Fast.Normalize(),
		RequestTimeout: cfg.Screening.GetRequestTimeout(),
		MaxRangeDays:   cfg.Screening.MaxRangeDays,
	}
}

// Service implements FluctuationService
type Service struct {
	universe interfaces.UniverseProvider
	fetcher  interfaces.PriceFetcher
	cache    interfaces.ResultCache
	config   Config
	logger   *common.Logger
	metrics  *metrics.Metrics
}

// NewService creates a new fluctuation service. m may be nil.
func NewService(
	universe interfaces.UniverseProvider,
	fetcher interfaces.PriceFetcher,
	resultCache interfaces.ResultCache,
	config Config,
	logger *common.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		universe: universe,
		fetcher:  fetcher,
		cache:    resultCache,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

// FindFluctuations scans the market under the default limits.
func (s *Service) FindFluctuations(ctx context.Context, req models.FluctuationRequest) (*models.FluctuationResult, error) {
	return s.find(ctx, req, s.config.Default, "fluctuation")
}

// FindFluctuationsFast scans the market under the fast limits.
func (s *Service) FindFluctuationsFast(ctx context.Context, req models.FluctuationRequest) (*models.FluctuationResult, error) {
	return s.find(ctx, req, s.config.Fast, "fluctuation_fast")
}

func (s *Service) validate(req models.FluctuationRequest) (models.Market, models.DateRange, error) {
	country := models.Country(strings.ToUpper(strings.TrimSpace(req.Country)))
	if country != models.CountryKR && country != models.CountryUS {
		return "", models.DateRange{}, models.NewValidationError("country", "must be KR or US, got %q", req.Country)
	}

	if strings.TrimSpace(req.Market) == "" {
		return "", models.DateRange{}, models.NewValidationError("market", "is required")
	}
	market := models.ParseMarket(req.Market)
	if market.IsKnown() && market.Country() != country {
		return "", models.DateRange{}, models.NewValidationError("market", "%s is not a %s market", market, country)
	}

	dr, err := models.ParseDateRange(req.StartDate, req.EndDate, s.config.MaxRangeDays)
	if err != nil {
		return "", models.DateRange{}, err
	}

	switch {
	case req.DeclinePeriod < 1:
		return "", models.DateRange{}, models.NewValidationError("decline_period", "must be at least 1 trading day")
	case req.DeclineRate >= 0:
		return "", models.DateRange{}, models.NewValidationError("decline_rate", "must be negative, got %g", req.DeclineRate)
	case req.ReboundPeriod < 1:
		return "", models.DateRange{}, models.NewValidationError("rebound_period", "must be at least 1 day")
	case req.ReboundRate <= 0:
		return "", models.DateRange{}, models.NewValidationError("rebound_rate", "must be positive, got %g", req.ReboundRate)
	}

	return market, dr, nil
}

func (s *Service) find(ctx context.Context, req models.FluctuationRequest, limits models.ScreeningLimits, operation string) (*models.FluctuationResult, error) {
	market, dr, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	params := req.Params()

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	start := time.Now()

	result := &models.FluctuationResult{
		FoundStocks:    []models.FluctuationSummary{},
		AnalysisPeriod: dr.String(),
		Market:         string(market),
		Limits:         limits,
	}

	tickers := s.universe.ListTickers(ctx, market)
	if err := s.checkTimeout(ctx); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		s.logger.Info().Str("market", string(market)).Msg("Empty universe, nothing to scan")
		return result, nil
	}

	key := cache.NewKey(cache.PrefixFluctuation, string(market), map[string]any{
		"start_date":     dr.Start.Format(models.DateLayout),
		"end_date":       dr.End.Format(models.DateLayout),
		"decline_period": params.DeclinePeriod,
		"decline_rate":   params.DeclineRate,
		"rebound_period": params.ReboundPeriod,
		"rebound_rate":   params.ReboundRate,
		"max_tickers":    limits.MaxTickers,
		"chunk_size":     limits.ChunkSize,
		"max_chunks":     limits.MaxChunks,
	})

	var cached models.FluctuationResult
	if s.cache.Get(ctx, key, &cached) {
		s.logger.Info().Str("market", string(market)).Str("operation", operation).Msg("Serving cached fluctuation scan")
		cached.Cached = true
		return &cached, nil
	}

	symbols := make([]string, 0, len(tickers))
	names := make(map[string]string, len(tickers))
	for _, t := range tickers {
		symbols = append(symbols, t.Symbol)
		names[t.Symbol] = t.DisplayName
	}

	s.logger.Info().
		Str("market", string(market)).
		Str("period", result.AnalysisPeriod).
		Int("decline_period", params.DeclinePeriod).
		Float64("decline_rate", params.DeclineRate).
		Int("rebound_period", params.ReboundPeriod).
		Float64("rebound_rate", params.ReboundRate).
		Int("universe", len(symbols)).
		Str("operation", operation).
		Msg("Fluctuation scan started")

	batch, err := s.fetcher.FetchBatch(ctx, market, symbols, dr.Start, dr.End, limits)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn().
				Str("market", string(market)).
				Str("operation", operation).
				Dur("timeout", s.config.RequestTimeout).
				Msg("Scan timed out, discarding partial results")
			return nil, fmt.Errorf("%w after %s", models.ErrAnalysisTimeout, s.config.RequestTimeout)
		}
		return nil, fmt.Errorf("fetch %s prices: %w", market, err)
	}

	var events []models.FluctuationEvent
	for _, series := range batch.Series {
		name := names[series.Symbol]
		if name == "" {
			name = series.Symbol
		}
		events = append(events, FindEvents(series.Symbol, name, series, params)...)
	}

	result.FoundStocks = Aggregate(events)
	result.TotalAnalyzed = len(batch.Series)

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
		Int("events", len(events)).
		Int("stocks", len(result.FoundStocks)).
		Int("skipped_items", batch.Skipped()).
		Bool("truncated", batch.Truncated).
		Dur("elapsed", elapsed).
		Msg("Fluctuation scan complete")

	return result, nil
}

func (s *Service) checkTimeout(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", models.ErrAnalysisTimeout, s.config.RequestTimeout)
	}
	return ctx.Err()
}

var _ interfaces.FluctuationService = (*Service)(nil)
