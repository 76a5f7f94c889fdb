// Package interfaces defines service contracts for the screener
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/screener/internal/models"
)

// EODHDClient provides access to the EODHD API
type EODHDClient interface {
	// GetEOD retrieves end-of-day price data
	GetEOD(ctx context.Context, ticker string, opts ...EODOption) (*models.EODResponse, error)

	// GetExchangeSymbols retrieves all symbols for an exchange
	GetExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error)

	// GetIndexComponents retrieves the constituents of an index (e.g. GSPC.INDX)
	GetIndexComponents(ctx context.Context, index string) ([]models.TickerRecord, error)
}

// YahooClient provides access to the Yahoo Finance chart endpoints
type YahooClient interface {
	// GetChart retrieves daily closes for one symbol
	GetChart(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error)

	// GetSpark retrieves daily closes for several symbols in one request
	GetSpark(ctx context.Context, symbols []string, from, to time.Time) (map[string]models.PriceSeries, error)
}

// EODOption configures EOD data requests
type EODOption func(*EODParams)

// EODParams holds EOD query parameters
type EODParams struct {
	From   time.Time
	To     time.Time
	Period string // d=daily, w=weekly, m=monthly
	Order  string // a=ascending, d=descending
}

// WithDateRange sets the date range for EOD query
func WithDateRange(from, to time.Time) EODOption {
	return func(p *EODParams) {
		p.From = from
		p.To = to
	}
}

// WithOrder sets the sort order for EOD query
func WithOrder(order string) EODOption {
	return func(p *EODParams) {
		p.Order = order
	}
}

// SeriesSource fetches one symbol's closes. Used by the domestic path.
type SeriesSource interface {
	FetchSeries(ctx context.Context, market models.Market, symbol string, from, to time.Time) (models.PriceSeries, error)
}

// BatchSource fetches several symbols' closes in one upstream request. Used by the foreign path.
type BatchSource interface {
	FetchSeriesBatch(ctx context.Context, market models.Market, symbols []string, from, to time.Time) (map[string]models.PriceSeries, error)
}

// ListingSource resolves the raw listing of a market.
type ListingSource interface {
	ListSymbols(ctx context.Context, market models.Market) ([]models.TickerRecord, error)
}

// PriceFetcher retrieves closing-price series under the fetch policy
type PriceFetcher interface {
	// FetchOne retrieves a single symbol, routed by market
	FetchOne(ctx context.Context, market models.Market, symbol string, from, to time.Time) (models.PriceSeries, error)

	// FetchBatch retrieves a universe under the given limits. On cancellation
	// the partial result is returned together with ctx.Err().
	FetchBatch(ctx context.Context, market models.Market, symbols []string, from, to time.Time, limits models.ScreeningLimits) (*models.BatchResult, error)
}
