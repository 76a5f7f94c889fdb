package universe

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/models"
)

// SP500Index is the EODHD code of the S&P 500 index.
const SP500Index = "GSPC.INDX"

// EODHDListing resolves market listings from EODHD exchange symbol lists and
// index constituents.
type EODHDListing struct {
	eodhd interfaces.EODHDClient
}

// NewEODHDListing creates a listing source on the EODHD client
func NewEODHDListing(eodhd interfaces.EODHDClient) *EODHDListing {
	return &EODHDListing{eodhd: eodhd}
}

// ListSymbols returns the raw listing of a market. Unknown markets yield an empty list.
func (l *EODHDListing) ListSymbols(ctx context.Context, market models.Market) ([]models.TickerRecord, error) {
	switch market {
	case models.MarketKOSPI:
		return l.exchange(ctx, "KO", isDomesticCode)
	case models.MarketKOSDAQ:
		return l.exchange(ctx, "KQ", isDomesticCode)
	case models.MarketNASDAQ, models.MarketNYSE:
		want := string(market)
		return l.exchange(ctx, "US", func(sym *models.Symbol) bool {
			return strings.EqualFold(sym.Exchange, want)
		})
	case models.MarketSP500:
		records, err := l.eodhd.GetIndexComponents(ctx, SP500Index)
		if err != nil {
			return nil, fmt.Errorf("index components %s: %w", SP500Index, err)
		}
		return dedup(records), nil
	}
	return nil, nil
}

func (l *EODHDListing) exchange(ctx context.Context, code string, keep func(*models.Symbol) bool) ([]models.TickerRecord, error) {
	symbols, err := l.eodhd.GetExchangeSymbols(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange symbols %s: %w", code, err)
	}

	records := make([]models.TickerRecord, 0, len(symbols))
	for _, sym := range symbols {
		if sym == nil {
			continue
		}
		// Only common stocks; ETFs, warrants and funds are excluded
		if sym.Type != "" && sym.Type != "Common Stock" {
			continue
		}
		if !keep(sym) {
			continue
		}
		records = append(records, models.TickerRecord{
			Symbol:      strings.TrimSpace(sym.Code),
			DisplayName: strings.TrimSpace(sym.Name),
		})
	}

	return dedup(records), nil
}

// isDomesticCode keeps six-digit numeric share codes
func isDomesticCode(sym *models.Symbol) bool {
	code := strings.TrimSpace(sym.Code)
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// dedup drops empty and repeated symbols, keeping the first occurrence
func dedup(records []models.TickerRecord) []models.TickerRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.TickerRecord, 0, len(records))
	for _, r := range records {
		if r.Symbol == "" {
			continue
		}
		if _, ok := seen[r.Symbol]; ok {
			continue
		}
		seen[r.Symbol] = struct{}{}
		out = append(out, r)
	}
	return out
}

var _ interfaces.ListingSource = (*EODHDListing)(nil)
