package models

import (
	"encoding/json"
	"time"
)

// ScreeningLimits bounds the work a single screening call may do.
// It is passed per call; nothing shared is mutated to apply it.
type ScreeningLimits struct {
	MaxTickers int `json:"max_tickers" toml:"max_tickers"`
	ChunkSize  int `json:"chunk_size" toml:"chunk_size"`
	MaxChunks  int `json:"max_chunks" toml:"max_chunks"`
	MaxTopN    int `json:"max_top_n" toml:"max_top_n"`
}

// DefaultScreeningLimits returns the limits used by the regular analysis endpoints.
func DefaultScreeningLimits() ScreeningLimits {
	return ScreeningLimits{MaxTickers: 1000, ChunkSize: 50, MaxChunks: 20, MaxTopN: 50}
}

// FastScreeningLimits returns the tighter limits used by the fast endpoints.
func FastScreeningLimits() ScreeningLimits {
	return ScreeningLimits{MaxTickers: 500, ChunkSize: 25, MaxChunks: 10, MaxTopN: 20}
}

// Normalize fills zero fields from the defaults.
func (l ScreeningLimits) Normalize() ScreeningLimits {
	d := DefaultScreeningLimits()
	if l.MaxTickers <= 0 {
		l.MaxTickers = d.MaxTickers
	}
	if l.ChunkSize <= 0 {
		l.ChunkSize = d.ChunkSize
	}
	if l.MaxChunks <= 0 {
		l.MaxChunks = d.MaxChunks
	}
	if l.MaxTopN <= 0 {
		l.MaxTopN = d.MaxTopN
	}
	return l
}

// --- Performance ---

// DefaultTopN is applied when a performance request leaves top_n unset.
const DefaultTopN = 10

// PerformanceRequest asks for the best and worst performers of a market.
type PerformanceRequest struct {
	Market    string `json:"market"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TopN      int    `json:"top_n"`
}

// PerformanceRecord is one symbol's return over the analysis period.
type PerformanceRecord struct {
	Symbol         string  `json:"ticker"`
	DisplayName    string  `json:"name"`
	PerformancePct float64 `json:"performance"`
}

// PerformanceResult is the ranked outcome of a performance analysis.
type PerformanceResult struct {
	TopPerformers    []PerformanceRecord `json:"top_performers"`
	BottomPerformers []PerformanceRecord `json:"bottom_performers"`
	TotalAnalyzed    int                 `json:"total_analyzed"`
	AnalysisPeriod   string              `json:"analysis_period"`
	Market           string              `json:"market"`
	TopN             int                 `json:"top_n"`
	Limits           ScreeningLimits     `json:"limits"`
	Cached           bool                `json:"cached"`
}

// --- Fluctuation ---

// FluctuationRequest asks for decline-then-rebound episodes across a market.
type FluctuationRequest struct {
	Country       string  `json:"country"`
	Market        string  `json:"market"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	DeclinePeriod int     `json:"decline_period"`
	DeclineRate   float64 `json:"decline_rate"`
	ReboundPeriod int     `json:"rebound_period"`
	ReboundRate   float64 `json:"rebound_rate"`
}

// DefaultFluctuationRequest returns a request pre-filled with the default thresholds.
func DefaultFluctuationRequest() FluctuationRequest {
	return FluctuationRequest{
		DeclinePeriod: 5,
		DeclineRate:   -20,
		ReboundPeriod: 20,
		ReboundRate:   20,
	}
}

// FluctuationParams are the detector thresholds.
type FluctuationParams struct {
	DeclinePeriod int     // trading days looked back
	DeclineRate   float64 // percent, negative
	ReboundPeriod int     // calendar days looked forward
	ReboundRate   float64 // percent, positive
}

// Params extracts the detector thresholds from the request.
func (r FluctuationRequest) Params() FluctuationParams {
	return FluctuationParams{
		DeclinePeriod: r.DeclinePeriod,
		DeclineRate:   r.DeclineRate,
		ReboundPeriod: r.ReboundPeriod,
		ReboundRate:   r.ReboundRate,
	}
}

// FluctuationEvent is one decline-then-recovery episode.
type FluctuationEvent struct {
	Symbol                string    `json:"ticker"`
	DisplayName           string    `json:"name"`
	TroughDate            time.Time `json:"-"`
	TroughPrice           float64   `json:"trough_price"`
	ReboundDate           time.Time `json:"-"`
	ReboundPrice          float64   `json:"rebound_price"`
	ReboundPerformancePct float64   `json:"rebound_performance"`
}

type fluctuationEventJSON struct {
	Symbol                string  `json:"ticker"`
	DisplayName           string  `json:"name"`
	TroughDate            string  `json:"trough_date"`
	TroughPrice           float64 `json:"trough_price"`
	ReboundDate           string  `json:"rebound_date"`
	ReboundPrice          float64 `json:"rebound_price"`
	ReboundPerformancePct float64 `json:"rebound_performance"`
}

// MarshalJSON renders dates as YYYY-MM-DD.
func (e FluctuationEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(fluctuationEventJSON{
		Symbol:                e.Symbol,
		DisplayName:           e.DisplayName,
		TroughDate:            e.TroughDate.Format(DateLayout),
		TroughPrice:           e.TroughPrice,
		ReboundDate:           e.ReboundDate.Format(DateLayout),
		ReboundPrice:          e.ReboundPrice,
		ReboundPerformancePct: e.ReboundPerformancePct,
	})
}

// UnmarshalJSON accepts the YYYY-MM-DD form written by MarshalJSON.
func (e *FluctuationEvent) UnmarshalJSON(data []byte) error {
	var raw fluctuationEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	trough, err := time.Parse(DateLayout, raw.TroughDate)
	if err != nil {
		return err
	}
	rebound, err := time.Parse(DateLayout, raw.ReboundDate)
	if err != nil {
		return err
	}
	*e = FluctuationEvent{
		Symbol:                raw.Symbol,
		DisplayName:           raw.DisplayName,
		TroughDate:            trough,
		TroughPrice:           raw.TroughPrice,
		ReboundDate:           rebound,
		ReboundPrice:          raw.ReboundPrice,
		ReboundPerformancePct: raw.ReboundPerformancePct,
	}
	return nil
}

// FluctuationSummary aggregates every event of one symbol, most recent first.
type FluctuationSummary struct {
	Symbol                          string             `json:"ticker"`
	DisplayName                     string             `json:"name"`
	OccurrenceCount                 int                `json:"occurrence_count"`
	MostRecentTroughDate            string             `json:"recent_trough_date"`
	MostRecentTroughPrice           float64            `json:"recent_trough_price"`
	MostRecentReboundDate           string             `json:"recent_rebound_date"`
	MostRecentReboundPerformancePct float64            `json:"recent_rebound_performance"`
	Events                          []FluctuationEvent `json:"events"`
}

// FluctuationResult is the outcome of a fluctuation analysis.
type FluctuationResult struct {
	FoundStocks    []FluctuationSummary `json:"found_stocks"`
	TotalAnalyzed  int                  `json:"total_analyzed"`
	AnalysisPeriod string               `json:"analysis_period"`
	Market         string               `json:"market"`
	Limits         ScreeningLimits      `json:"limits"`
	Cached         bool                 `json:"cached"`
}

// --- Comparison ---

// CompareRequest asks for cumulative return series of a few tickers.
type CompareRequest struct {
	Tickers   []string `json:"tickers"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// ComparePoint holds every ticker's cumulative return on one date.
type ComparePoint struct {
	Date   string
	Values map[string]float64
}

// MarshalJSON flattens the point to {"date": ..., "<ticker>": value}.
func (p ComparePoint) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Values)+1)
	for k, v := range p.Values {
		out[k] = v
	}
	out["date"] = p.Date
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened form written by MarshalJSON.
func (p *ComparePoint) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	point := ComparePoint{Values: make(map[string]float64, len(raw))}
	for k, v := range raw {
		if k == "date" {
			if err := json.Unmarshal(v, &point.Date); err != nil {
				return err
			}
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return err
		}
		point.Values[k] = f
	}
	*p = point
	return nil
}

// CompareSeries names one line of the comparison chart.
type CompareSeries struct {
	DataKey string `json:"dataKey"`
	Name    string `json:"name"`
}

// CompareResult is the outcome of a stock comparison.
type CompareResult struct {
	Data   []ComparePoint  `json:"data"`
	Series []CompareSeries `json:"series"`
}

// --- Cache administration ---

// CacheStats describes both cache tiers.
type CacheStats struct {
	Enabled        bool   `json:"enabled"`
	Backend        string `json:"backend"`
	SizeInProcess  int    `json:"size_in_process"`
	SizePersistent int    `json:"size_persistent"`
	TTLSeconds     int    `json:"ttl_seconds"`
}

// CacheStatsResponse adds the screening configuration to the cache stats.
type CacheStatsResponse struct {
	CacheStats
	Config ScreeningConfigView `json:"config"`
}

// ScreeningConfigView is the read-only view of the active screening limits.
type ScreeningConfigView struct {
	Default        ScreeningLimits `json:"default"`
	Fast           ScreeningLimits `json:"fast"`
	RequestTimeout string          `json:"request_timeout"`
	FetchTimeout   string          `json:"fetch_timeout"`
}

// ClearCacheResponse reports the outcome of a cache clear.
type ClearCacheResponse struct {
	Success bool   `json:"success"`
	Market  string `json:"market,omitempty"`
	Removed int    `json:"removed"`
}
