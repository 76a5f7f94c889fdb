package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/models"
)

// warmCache runs the fast performance analysis for the configured markets on
// startup so the first dashboard query is served from the cache.
func warmCache(ctx context.Context, performance interfaces.PerformanceService, cfg common.SchedulerConfig, now func() time.Time, logger *common.Logger) {
	// Check env var override
	if os.Getenv("SCREENER_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via SCREENER_WARM_CACHE=off")
		return
	}

	lookback := cfg.WarmLookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	end := now()
	start := end.AddDate(0, 0, -lookback)

	for _, market := range cfg.WarmMarkets {
		if ctx.Err() != nil {
			logger.Info().Msg("Warm cache: cancelled")
			return
		}

		began := time.Now()
		res, err := performance.AnalyzePerformanceFast(ctx, models.PerformanceRequest{
			Market:    market,
			StartDate: start.Format(models.DateLayout),
			EndDate:   end.Format(models.DateLayout),
			TopN:      models.DefaultTopN,
		})
		if err != nil {
			logger.Warn().Str("market", market).Err(err).Msg("Warm cache: analysis failed")
			continue
		}

		logger.Info().
			Str("market", market).
			Int("analyzed", res.TotalAnalyzed).
			Bool("cached", res.Cached).
			Dur("elapsed", time.Since(began)).
			Msg("Warm cache: complete")
	}
}
