// Package models defines data structures for the screener
package models

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Market identifies an exchange segment the screener can enumerate.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
	MarketNASDAQ Market = "NASDAQ"
	MarketNYSE   Market = "NYSE"
	MarketSP500  Market = "S&P500"
)

// Country groups markets by the upstream family that serves them.
type Country string

const (
	CountryKR Country = "KR"
	CountryUS Country = "US"
)

// KnownMarkets lists every market with a listing source.
var KnownMarkets = []Market{MarketKOSPI, MarketKOSDAQ, MarketNASDAQ, MarketNYSE, MarketSP500}

// ParseMarket normalises a caller-supplied market name. Unknown names are
// returned upper-cased rather than rejected; they resolve to an empty universe.
func ParseMarket(s string) Market {
	m := strings.ToUpper(strings.TrimSpace(s))
	switch m {
	case "SP500", "S&P 500", "S&P500":
		return MarketSP500
	}
	return Market(m)
}

// IsKnown reports whether the market has a listing source.
func (m Market) IsKnown() bool {
	for _, k := range KnownMarkets {
		if m == k {
			return true
		}
	}
	return false
}

// IsDomestic reports whether the market is served by the single-symbol domestic path.
func (m Market) IsDomestic() bool {
	return m == MarketKOSPI || m == MarketKOSDAQ
}

// Country returns the market's country, or "" for unknown markets.
func (m Market) Country() Country {
	switch m {
	case MarketKOSPI, MarketKOSDAQ:
		return CountryKR
	case MarketNASDAQ, MarketNYSE, MarketSP500:
		return CountryUS
	}
	return ""
}

// TickerRecord is one listed instrument of a market.
type TickerRecord struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}

// Symbol is an entry of the EODHD exchange symbol list
type Symbol struct {
	Code     string `json:"Code"`
	Name     string `json:"Name"`
	Country  string `json:"Country"`
	Exchange string `json:"Exchange"`
	Currency string `json:"Currency"`
	Type     string `json:"Type"`
}

// EODBar represents a single day's price data
type EODBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjusted_close"`
	Volume   int64     `json:"volume"`
}

// EODResponse represents the EODHD API response
type EODResponse struct {
	Data []EODBar `json:"data"`
}

// PricePoint is one closing price.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is an ascending, duplicate-free sequence of positive closes for one symbol.
// Build it with NewPriceSeries; it is never mutated afterwards.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// NewPriceSeries drops non-positive or non-finite closes, sorts by date and
// keeps the first point seen for each date.
func NewPriceSeries(symbol string, points []PricePoint) PriceSeries {
	valid := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if p.Date.IsZero() || p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		valid = append(valid, p)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Date.Before(valid[j].Date)
	})

	out := valid[:0]
	for i, p := range valid {
		if i > 0 && sameDay(p.Date, out[len(out)-1].Date) {
			continue
		}
		out = append(out, p)
	}

	return PriceSeries{Symbol: symbol, Points: out}
}

// Len returns the number of points.
func (s PriceSeries) Len() int {
	return len(s.Points)
}

// IsEmpty reports whether the series has no points.
func (s PriceSeries) IsEmpty() bool {
	return len(s.Points) == 0
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateLayout is the wire format for request and response dates.
const DateLayout = "2006-01-02"

// FetchStatus is the outcome of one fetch item.
type FetchStatus string

const (
	FetchOK      FetchStatus = "ok"
	FetchSkipped FetchStatus = "skipped"
)

// ItemResult records the outcome of one upstream request: a single symbol on
// the domestic path, a chunk of symbols on the foreign path.
type ItemResult struct {
	Symbols []string    `json:"symbols"`
	Status  FetchStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
}

// BatchResult is the outcome of fetching a universe. Series keeps the input
// symbol order and holds only non-empty series.
type BatchResult struct {
	Series          []PriceSeries `json:"series"`
	Items           []ItemResult  `json:"items"`
	ChunksProcessed int           `json:"chunks_processed"`
	Truncated       bool          `json:"truncated"`
}

// Skipped returns the number of items that failed every attempt.
func (b *BatchResult) Skipped() int {
	n := 0
	for _, it := range b.Items {
		if it.Status == FetchSkipped {
			n++
		}
	}
	return n
}
