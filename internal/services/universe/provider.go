// Package universe resolves a market to its listed tickers
package universe

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/models"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 100
)

type listing struct {
	tickers    []models.TickerRecord
	insertedAt time.Time
}

// Provider implements UniverseProvider with a bounded listing cache. A cached
// listing is served while it is younger than the TTL and was fetched on the
// current calendar day, so each trading day starts from a fresh listing.
type Provider struct {
	source     interfaces.ListingSource
	ttl        time.Duration
	maxEntries int
	logger     *common.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[models.Market]*listing
}

// NewProvider creates a provider over a listing source
func NewProvider(source interfaces.ListingSource, config common.UniverseConfig, logger *common.Logger) *Provider {
	maxEntries := config.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Provider{
		source:     source,
		ttl:        config.GetTTL(),
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[models.Market]*listing),
	}
}

// SetClock overrides the time source (tests)
func (p *Provider) SetClock(now func() time.Time) {
	p.now = now
}

// ListTickers returns the market's tickers. Unknown markets and upstream
// failures yield an empty list.
func (p *Provider) ListTickers(ctx context.Context, market models.Market) []models.TickerRecord {
	if !market.IsKnown() {
		p.logger.Info().Str("market", string(market)).Msg("Unknown market, empty universe")
		return []models.TickerRecord{}
	}

	if tickers, ok := p.cached(market); ok {
		return tickers
	}

	return p.resolve(ctx, market)
}

// Refresh drops the cached listing and resolves it again
func (p *Provider) Refresh(ctx context.Context, market models.Market) []models.TickerRecord {
	p.Invalidate(market)
	return p.ListTickers(ctx, market)
}

// Invalidate drops the cached listing of a market
func (p *Provider) Invalidate(market models.Market) {
	p.mu.Lock()
	delete(p.entries, market)
	p.mu.Unlock()
}

func (p *Provider) cached(market models.Market) ([]models.TickerRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[market]
	if !ok {
		return nil, false
	}
	if !p.live(entry, p.now()) {
		delete(p.entries, market)
		return nil, false
	}
	return entry.tickers, true
}

func (p *Provider) live(entry *listing, now time.Time) bool {
	if !now.Before(entry.insertedAt.Add(p.ttl)) {
		return false
	}
	ny, nm, nd := now.Date()
	iy, im, id := entry.insertedAt.Date()
	return ny == iy && nm == im && nd == id
}

func (p *Provider) resolve(ctx context.Context, market models.Market) []models.TickerRecord {
	start := p.now()

	tickers, err := p.source.ListSymbols(ctx, market)
	if err != nil {
		p.logger.Warn().Str("market", string(market)).Err(err).Msg("Listing unavailable, empty universe")
		return []models.TickerRecord{}
	}
	if len(tickers) == 0 {
		p.logger.Warn().Str("market", string(market)).Msg("Listing returned no tickers")
		return []models.TickerRecord{}
	}

	p.store(market, tickers)

	p.logger.Info().
		Str("market", string(market)).
		Int("tickers", len(tickers)).
		Dur("elapsed", p.now().Sub(start)).
		Msg("Universe resolved")

	return tickers
}

func (p *Provider) store(market models.Market, tickers []models.TickerRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[market]; !exists && len(p.entries) >= p.maxEntries {
		var oldest models.Market
		var oldestAt time.Time
		first := true
		for m, e := range p.entries {
			if first || e.insertedAt.Before(oldestAt) {
				oldest, oldestAt, first = m, e.insertedAt, false
			}
		}
		delete(p.entries, oldest)
	}

	p.entries[market] = &listing{tickers: tickers, insertedAt: p.now()}
}

var _ interfaces.UniverseProvider = (*Provider)(nil)
