// Package yahoo provides a client for the Yahoo Finance chart and spark endpoints.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/models"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
	DefaultUserAgent = "Mozilla/5.0"
)

// Client implements the YahooClient interface
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header; Yahoo rejects requests without one
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithClock overrides the time source used to pick the spark range
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Yahoo API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// apiErrorBody is the error object embedded in chart and spark responses
type apiErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// chartSeries is the per-symbol payload shared by the chart and spark endpoints.
// Closes are null on halted days.
type chartSeries struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartSeries  `json:"result"`
		Error  *apiErrorBody `json:"error"`
	} `json:"chart"`
}

type sparkResponse struct {
	Spark struct {
		Result []struct {
			Symbol   string        `json:"symbol"`
			Response []chartSeries `json:"response"`
		} `json:"result"`
		Error *apiErrorBody `json:"error"`
	} `json:"spark"`
}

// toSeries converts a payload to a series trimmed to [from, to] by calendar date
func toSeries(symbol string, cs chartSeries, from, to time.Time) models.PriceSeries {
	if len(cs.Indicators.Quote) == 0 {
		return models.NewPriceSeries(symbol, nil)
	}
	closes := cs.Indicators.Quote[0].Close

	first := dayOf(from)
	last := dayOf(to)

	points := make([]models.PricePoint, 0, len(cs.Timestamp))
	for i, ts := range cs.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		day := dayOf(time.Unix(ts, 0).UTC())
		if day.Before(first) || day.After(last) {
			continue
		}
		points = append(points, models.PricePoint{Date: day, Close: *closes[i]})
	}

	return models.NewPriceSeries(symbol, points)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// yahooSymbol maps a listing symbol to Yahoo's form (BRK.B -> BRK-B)
func yahooSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(symbol)), ".", "-")
}

// GetChart retrieves daily closes for one symbol between from and to inclusive.
func (c *Client) GetChart(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error) {
	path := "/v8/finance/chart/" + url.PathEscape(yahooSymbol(symbol))

	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("period1", strconv.FormatInt(dayOf(from).Unix(), 10))
	params.Set("period2", strconv.FormatInt(dayOf(to).AddDate(0, 0, 1).Unix(), 10))

	var resp chartResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return models.PriceSeries{}, err
	}
	if resp.Chart.Error != nil {
		return models.PriceSeries{}, fmt.Errorf("yahoo chart %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return models.NewPriceSeries(symbol, nil), nil
	}

	return toSeries(symbol, resp.Chart.Result[0], from, to), nil
}

// sparkRange picks the smallest spark range that reaches back to from
func sparkRange(now, from time.Time) string {
	days := int(now.Sub(from).Hours()/24) + 1
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	case days <= 1825:
		return "5y"
	case days <= 3650:
		return "10y"
	}
	return "max"
}

// GetSpark retrieves daily closes for several symbols in one request. The
// result is keyed by the caller's symbols; symbols Yahoo returned nothing for
// are absent.
func (c *Client) GetSpark(ctx context.Context, symbols []string, from, to time.Time) (map[string]models.PriceSeries, error) {
	if len(symbols) == 0 {
		return map[string]models.PriceSeries{}, nil
	}

	original := make(map[string]string, len(symbols))
	wire := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ys := yahooSymbol(s)
		if _, dup := original[ys]; dup {
			continue
		}
		original[ys] = s
		wire = append(wire, ys)
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(wire, ","))
	params.Set("interval", "1d")
	params.Set("range", sparkRange(c.now(), from))

	var resp sparkResponse
	if err := c.get(ctx, "/v7/finance/spark", params, &resp); err != nil {
		return nil, err
	}
	if resp.Spark.Error != nil {
		return nil, fmt.Errorf("yahoo spark: %s", resp.Spark.Error.Description)
	}

	out := make(map[string]models.PriceSeries, len(resp.Spark.Result))
	for _, r := range resp.Spark.Result {
		sym, ok := original[strings.ToUpper(r.Symbol)]
		if !ok || len(r.Response) == 0 {
			continue
		}
		series := toSeries(sym, r.Response[0], from, to)
		if series.IsEmpty() {
			continue
		}
		out[sym] = series
	}

	c.logger.Debug().
		Int("requested", len(wire)).
		Int("returned", len(out)).
		Msg("Yahoo spark response")

	return out, nil
}

// FetchSeriesBatch adapts GetSpark to the batch source used by the foreign fetch path.
func (c *Client) FetchSeriesBatch(ctx context.Context, market models.Market, symbols []string, from, to time.Time) (map[string]models.PriceSeries, error) {
	return c.GetSpark(ctx, symbols, from, to)
}

// FetchSeries adapts GetChart to the single-symbol source used by comparisons.
func (c *Client) FetchSeries(ctx context.Context, market models.Market, symbol string, from, to time.Time) (models.PriceSeries, error) {
	return c.GetChart(ctx, symbol, from, to)
}

// Ensure Client implements the source interfaces
var (
	_ interfaces.YahooClient  = (*Client)(nil)
	_ interfaces.BatchSource  = (*Client)(nil)
	_ interfaces.SeriesSource = (*Client)(nil)
)
