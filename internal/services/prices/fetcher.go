// Package prices fetches closing-price series under the upstream fetch policy.
//
// Domestic markets are fetched one symbol per request; foreign markets in
// multi-symbol chunks. Every request is retried and time-boxed, a request
// that fails all attempts is recorded as skipped, and the configured ceilings
// stop a batch early. Work within one batch is sequential.
package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/metrics"
	"github.com/bobmcallan/screener/internal/models"
)

// Policy holds the retry, timeout and pacing settings of upstream requests.
type Policy struct {
	Attempts           int
	RetryDelay         time.Duration
	RequestTimeout     time.Duration
	ChunkDelay         time.Duration
	DomesticPause      time.Duration
	DomesticPauseEvery int
	DomesticCap        int
}

// PolicyFromConfig builds a Policy from the fetch configuration
func PolicyFromConfig(cfg common.FetchConfig) Policy {
	p := Policy{
		Attempts:           cfg.Attempts,
		RetryDelay:         cfg.GetRetryDelay(),
		RequestTimeout:     cfg.GetRequestTimeout(),
		ChunkDelay:         cfg.GetChunkDelay(),
		DomesticPause:      cfg.GetDomesticPause(),
		DomesticPauseEvery: cfg.DomesticPauseEvery,
		DomesticCap:        cfg.DomesticCap,
	}
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.DomesticCap <= 0 {
		p.DomesticCap = 500
	}
	return p
}

// Sources are the upstreams the fetcher routes to.
type Sources struct {
	Domestic   interfaces.SeriesSource // one symbol per request (EODHD)
	Foreign    interfaces.BatchSource  // many symbols per request (Yahoo spark)
	ForeignOne interfaces.SeriesSource // one foreign symbol (Yahoo chart)
}

// Fetcher implements PriceFetcher
type Fetcher struct {
	sources Sources
	policy  Policy
	logger  *common.Logger
	metrics *metrics.Metrics
}

// NewFetcher creates a fetcher. m may be nil.
func NewFetcher(sources Sources, policy Policy, logger *common.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		sources: sources,
		policy:  policy,
		logger:  logger,
		metrics: m,
	}
}

// FetchOne retrieves a single symbol with retries.
func (f *Fetcher) FetchOne(ctx context.Context, market models.Market, symbol string, from, to time.Time) (models.PriceSeries, error) {
	source := f.sources.ForeignOne
	if market.IsDomestic() {
		source = f.sources.Domestic
	}
	if source == nil {
		return models.PriceSeries{}, fmt.Errorf("no price source for market %s", market)
	}

	return withRetry(ctx, f.policy, func(ctx context.Context) (models.PriceSeries, error) {
		return source.FetchSeries(ctx, market, symbol, from, to)
	})
}

// FetchBatch retrieves the series of symbols under limits. Symbols without
// data are absent from the result. On cancellation the partial result is
// returned together with the context error.
func (f *Fetcher) FetchBatch(ctx context.Context, market models.Market, symbols []string, from, to time.Time, limits models.ScreeningLimits) (*models.BatchResult, error) {
	limits = limits.Normalize()
	start := time.Now()

	var (
		result *models.BatchResult
		err    error
	)
	if market.IsDomestic() {
		result, err = f.fetchDomestic(ctx, market, symbols, from, to, limits)
	} else {
		result, err = f.fetchForeign(ctx, market, symbols, from, to, limits)
	}

	event := f.logger.Info()
	if err != nil {
		event = f.logger.Warn().Err(err)
	}
	event.
		Str("market", string(market)).
		Int("requested", len(symbols)).
		Int("series", len(result.Series)).
		Int("items", len(result.Items)).
		Int("skipped", result.Skipped()).
		Bool("truncated", result.Truncated).
		Dur("elapsed", time.Since(start)).
		Msg("Price fetch finished")

	return result, err
}

// DomesticLimit returns how many domestic symbols one batch may request.
func (f *Fetcher) DomesticLimit(limits models.ScreeningLimits) int {
	n := limits.MaxTickers / 2
	if f.policy.DomesticCap < n {
		n = f.policy.DomesticCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (f *Fetcher) fetchDomestic(ctx context.Context, market models.Market, symbols []string, from, to time.Time, limits models.ScreeningLimits) (*models.BatchResult, error) {
	result := &models.BatchResult{}

	if f.sources.Domestic == nil {
		return result, fmt.Errorf("no domestic price source")
	}

	if limit := f.DomesticLimit(limits); len(symbols) > limit {
		f.logger.Info().
			Str("market", string(market)).
			Int("requested", len(symbols)).
			Int("limit", limit).
			Msg("Domestic universe capped")
		symbols = symbols[:limit]
		result.Truncated = true
	}

	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 && f.policy.DomesticPauseEvery > 0 && i%f.policy.DomesticPauseEvery == 0 {
			if err := sleepCtx(ctx, f.policy.DomesticPause); err != nil {
				return result, err
			}
		}

		series, err := withRetry(ctx, f.policy, func(ctx context.Context) (models.PriceSeries, error) {
			return f.sources.Domestic.FetchSeries(ctx, market, symbol, from, to)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		result.ChunksProcessed++

		if err != nil {
			f.skip(result, market, []string{symbol}, err)
			continue
		}

		result.Items = append(result.Items, models.ItemResult{Symbols: []string{symbol}, Status: models.FetchOK})
		f.metrics.FetchItem(string(market), string(models.FetchOK))
		if !series.IsEmpty() {
			series.Symbol = symbol
			result.Series = append(result.Series, series)
		}
	}

	return result, nil
}

func (f *Fetcher) fetchForeign(ctx context.Context, market models.Market, symbols []string, from, to time.Time, limits models.ScreeningLimits) (*models.BatchResult, error) {
	result := &models.BatchResult{}

	if f.sources.Foreign == nil {
		return result, fmt.Errorf("no foreign price source")
	}

	if len(symbols) > limits.MaxTickers {
		f.logger.Info().
			Str("market", string(market)).
			Int("requested", len(symbols)).
			Int("limit", limits.MaxTickers).
			Msg("Foreign universe capped")
		symbols = symbols[:limits.MaxTickers]
		result.Truncated = true
	}

	chunks := Chunk(symbols, limits.ChunkSize)
	if len(chunks) > limits.MaxChunks {
		f.logger.Info().
			Str("market", string(market)).
			Int("chunks", len(chunks)).
			Int("limit", limits.MaxChunks).
			Msg("Chunk limit reached, stopping early")
		chunks = chunks[:limits.MaxChunks]
		result.Truncated = true
	}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 {
			if err := sleepCtx(ctx, f.policy.ChunkDelay); err != nil {
				return result, err
			}
		}

		got, err := withRetry(ctx, f.policy, func(ctx context.Context) (map[string]models.PriceSeries, error) {
			return f.sources.Foreign.FetchSeriesBatch(ctx, market, chunk, from, to)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		result.ChunksProcessed++

		if err != nil {
			f.skip(result, market, chunk, err)
			continue
		}

		result.Items = append(result.Items, models.ItemResult{Symbols: chunk, Status: models.FetchOK})
		f.metrics.FetchItem(string(market), string(models.FetchOK))
		for _, symbol := range chunk {
			if series, ok := got[symbol]; ok && !series.IsEmpty() {
				series.Symbol = symbol
				result.Series = append(result.Series, series)
			}
		}

		f.logger.Debug().
			Str("market", string(market)).
			Int("chunk", i+1).
			Int("of", len(chunks)).
			Int("returned", len(got)).
			Msg("Chunk fetched")
	}

	return result, nil
}

func (f *Fetcher) skip(result *models.BatchResult, market models.Market, symbols []string, err error) {
	result.Items = append(result.Items, models.ItemResult{
		Symbols: symbols,
		Status:  models.FetchSkipped,
		Reason:  err.Error(),
	})
	f.metrics.FetchItem(string(market), string(models.FetchSkipped))

	f.logger.Warn().
		Str("market", string(market)).
		Strs("symbols", head(symbols, 5)).
		Int("count", len(symbols)).
		Err(err).
		Msg("Fetch item skipped after retries")
}

// Chunk splits symbols into consecutive groups of at most size.
func Chunk(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var chunks [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end:end])
	}
	return chunks
}

// withRetry runs call up to policy.Attempts times, each under RequestTimeout.
// It stops early when ctx is done.
func withRetry[T any](ctx context.Context, policy Policy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, policy.RetryDelay); err != nil {
				return zero, err
			}
		}

		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.RequestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, policy.RequestTimeout)
		}
		v, err := call(reqCtx)
		cancel()

		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("request timed out after %s: %w", policy.RequestTimeout, err)
		}
		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, attempts, err)
	}
	return zero, lastErr
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func head(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ interfaces.PriceFetcher = (*Fetcher)(nil)
