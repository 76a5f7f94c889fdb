// Package eodhd provides a client for the EODHD API: exchange symbol lists,
// index constituents and end-of-day prices.
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the EODHDClient interface
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
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
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
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
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	// Add API key
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
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

// GetEOD retrieves end-of-day price data
func (c *Client) GetEOD(ctx context.Context, ticker string, opts ...interfaces.EODOption) (*models.EODResponse, error) {
	params := &interfaces.EODParams{
		Period: "d",
		Order:  "d", // descending (most recent first)
	}

	for _, opt := range opts {
		opt(params)
	}

	urlParams := url.Values{}
	urlParams.Set("period", params.Period)
	urlParams.Set("order", params.Order)

	if !params.From.IsZero() {
		urlParams.Set("from", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		urlParams.Set("to", params.To.Format("2006-01-02"))
	}

	path := fmt.Sprintf("/eod/%s", ticker)

	var bars []eodBarResponse
	if err := c.get(ctx, path, urlParams, &bars); err != nil {
		return nil, err
	}

	result := &models.EODResponse{
		Data: make([]models.EODBar, len(bars)),
	}

	for i, bar := range bars {
		date, _ := time.Parse("2006-01-02", bar.Date)
		result.Data[i] = models.EODBar{
			Date:     date,
			Open:     float64(bar.Open),
			High:     float64(bar.High),
			Low:      float64(bar.Low),
			Close:    float64(bar.Close),
			AdjClose: float64(bar.AdjustedClose),
			Volume:   int64(bar.Volume),
		}
	}

	return result, nil
}

// eodBarResponse represents the API response for EOD data.
// Thinly traded domestic listings occasionally carry prices as strings.
type eodBarResponse struct {
	Date          string      `json:"date"`
	Open          flexFloat64 `json:"open"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Close         flexFloat64 `json:"close"`
	AdjustedClose flexFloat64 `json:"adjusted_close"`
	Volume        flexFloat64 `json:"volume"`
}

// GetExchangeSymbols retrieves all symbols for an exchange
func (c *Client) GetExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error) {
	path := fmt.Sprintf("/exchange-symbol-list/%s", exchange)

	var symbols []models.Symbol
	if err := c.get(ctx, path, nil, &symbols); err != nil {
		return nil, err
	}

	result := make([]*models.Symbol, len(symbols))
	for i := range symbols {
		result[i] = &symbols[i]
	}

	return result, nil
}

// indexComponent is one entry of the fundamentals Components object
type indexComponent struct {
	Code     string `json:"Code"`
	Exchange string `json:"Exchange"`
	Name     string `json:"Name"`
	Sector   string `json:"Sector"`
	Industry string `json:"Industry"`
}

// GetIndexComponents retrieves the current constituents of an index such as GSPC.INDX.
// Components are returned in the order EODHD numbers them.
func (c *Client) GetIndexComponents(ctx context.Context, index string) ([]models.TickerRecord, error) {
	path := fmt.Sprintf("/fundamentals/%s", index)

	params := url.Values{}
	params.Set("filter", "Components")

	var components map[string]indexComponent
	if err := c.get(ctx, path, params, &components); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(components))
	for id := range components {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})

	result := make([]models.TickerRecord, 0, len(ids))
	for _, id := range ids {
		comp := components[id]
		if comp.Code == "" {
			continue
		}
		result = append(result, models.TickerRecord{
			Symbol:      comp.Code,
			DisplayName: strings.TrimSpace(comp.Name),
		})
	}

	c.logger.Debug().Str("index", index).Int("components", len(result)).Msg("EODHD index components")

	return result, nil
}

// exchangeSuffix maps a domestic market to its EODHD exchange code
func exchangeSuffix(market models.Market) (string, bool) {
	switch market {
	case models.MarketKOSPI:
		return "KO", true
	case models.MarketKOSDAQ:
		return "KQ", true
	}
	return "", false
}

// FetchSeries retrieves one domestic symbol's daily closes between from and to inclusive.
func (c *Client) FetchSeries(ctx context.Context, market models.Market, symbol string, from, to time.Time) (models.PriceSeries, error) {
	suffix, ok := exchangeSuffix(market)
	if !ok {
		return models.PriceSeries{}, fmt.Errorf("market %s is not served by EODHD end-of-day prices", market)
	}

	eod, err := c.GetEOD(ctx, symbol+"."+suffix,
		interfaces.WithDateRange(from, to),
		interfaces.WithOrder("a"),
	)
	if err != nil {
		return models.PriceSeries{}, err
	}

	points := make([]models.PricePoint, 0, len(eod.Data))
	for _, bar := range eod.Data {
		points = append(points, models.PricePoint{Date: bar.Date, Close: bar.Close})
	}

	return models.NewPriceSeries(symbol, points), nil
}

// Ensure Client implements EODHDClient and SeriesSource
var (
	_ interfaces.EODHDClient  = (*Client)(nil)
	_ interfaces.SeriesSource = (*Client)(nil)
)
