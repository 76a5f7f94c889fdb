package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/models"
)

const universeRefreshTimeout = 5 * time.Minute

// cacheProber is the part of the result cache the scheduler drives.
type cacheProber interface {
	Probe(ctx context.Context) bool
}

// Scheduler runs the background jobs on a cron with a seconds field.
type Scheduler struct {
	cron     *cron.Cron
	universe interfaces.UniverseProvider
	cache    cacheProber
	logger   *common.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs are added by Register.
func NewScheduler(universe interfaces.UniverseProvider, cache cacheProber, logger *common.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{logger})),
		universe: universe,
		cache:    cache,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds the universe refresh and cache probe jobs. An empty spec
// leaves its job unscheduled.
func (s *Scheduler) Register(cfg common.SchedulerConfig) error {
	if cfg.UniverseRefresh != "" {
		if _, err := s.cron.AddFunc(cfg.UniverseRefresh, s.refreshUniverses); err != nil {
			return fmt.Errorf("register universe refresh: %w", err)
		}
	}
	if cfg.CacheProbe != "" && s.cache != nil {
		if _, err := s.cron.AddFunc(cfg.CacheProbe, s.probeCache); err != nil {
			return fmt.Errorf("register cache probe: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// refreshUniverses re-resolves the listing of every known market.
func (s *Scheduler) refreshUniverses() {
	ctx, cancel := context.WithTimeout(s.ctx, universeRefreshTimeout)
	defer cancel()

	start := time.Now()
	total := 0
	for _, market := range models.KnownMarkets {
		if ctx.Err() != nil {
			break
		}
		n := len(s.universe.Refresh(ctx, market))
		total += n
		s.logger.Debug().Str("market", string(market)).Int("tickers", n).Msg("Universe refreshed")
	}

	s.logger.Info().
		Int("markets", len(models.KnownMarkets)).
		Int("tickers", total).
		Dur("elapsed", time.Since(start)).
		Msg("Universe refresh: complete")
}

// probeCache brings the persistent cache tier back into use after an outage.
func (s *Scheduler) probeCache() {
	s.cache.Probe(s.ctx)
}

// cronLogger routes cron's own messages into the application logger.
type cronLogger struct {
	logger *common.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
