// Package app wires configuration, clients, caches and services into a
// running screener.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/screener/internal/cache"
	"github.com/bobmcallan/screener/internal/clients/eodhd"
	"github.com/bobmcallan/screener/internal/clients/yahoo"
	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/metrics"
	"github.com/bobmcallan/screener/internal/services/fluctuation"
	"github.com/bobmcallan/screener/internal/services/performance"
	"github.com/bobmcallan/screener/internal/services/prices"
	"github.com/bobmcallan/screener/internal/services/universe"
	"github.com/bobmcallan/screener/internal/storage"
)

// App holds all initialized services, clients and caches.
// It is the shared core of the serve and one-shot CLI commands.
type App struct {
	Config             *common.Config
	Logger             *common.Logger
	Metrics            *metrics.Metrics
	Cache              *cache.ResultCache
	EODHDClient        *eodhd.Client
	YahooClient        *yahoo.Client
	Universe           *universe.Provider
	Fetcher            *prices.Fetcher
	PerformanceService interfaces.PerformanceService
	FluctuationService interfaces.FluctuationService
	StartupTime        time.Time

	scheduler       *Scheduler
	warmCacheCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// LoadConfig resolves and loads the configuration. configPath may be empty,
// in which case SCREENER_CONFIG, then screener.toml beside the binary, then
// config/screener.toml are tried.
func LoadConfig(configPath string) (*common.Config, error) {
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("SCREENER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "screener.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/screener.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative log file path to binary directory
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	return config, nil
}

// NewApp loads the configuration and initializes the application.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return New(ctx, config, common.NewLoggerFromConfig(config.Logging))
}

// New initializes all clients, caches and services from a loaded configuration.
func New(ctx context.Context, config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	m := metrics.New()

	backend, err := storage.NewCacheBackend(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache backend: %w", err)
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithMetrics(m),
		cache.WithTTL(config.Cache.GetTTL()),
		cache.WithMaxEntries(config.Cache.MaxEntries),
		cache.WithNamespace(config.Cache.Namespace),
		cache.WithReprobeInterval(config.Cache.GetReprobeInterval()),
	}
	if backend != nil {
		cacheOpts = append(cacheOpts, cache.WithBackend(backend))
	}
	resultCache := cache.New(ctx, cacheOpts...)

	if config.Clients.EODHD.APIKey == "" {
		logger.Warn().Msg("EODHD API key not configured - domestic prices and listings will be empty")
	}

	eodhdClient := eodhd.NewClient(config.Clients.EODHD.APIKey,
		eodhd.WithBaseURL(config.Clients.EODHD.BaseURL),
		eodhd.WithLogger(logger),
		eodhd.WithRateLimit(config.Clients.EODHD.RateLimit),
		eodhd.WithTimeout(config.Clients.EODHD.GetTimeout()),
	)

	yahooClient := yahoo.NewClient(
		yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
		yahoo.WithLogger(logger),
		yahoo.WithRateLimit(config.Clients.Yahoo.RateLimit),
		yahoo.WithTimeout(config.Clients.Yahoo.GetTimeout()),
		yahoo.WithUserAgent(config.Clients.Yahoo.UserAgent),
	)

	universeProvider := universe.NewProvider(universe.NewEODHDListing(eodhdClient), config.Universe, logger)

	fetcher := prices.NewFetcher(prices.Sources{
		Domestic:   eodhdClient,
		Foreign:    yahooClient,
		ForeignOne: yahooClient,
	}, prices.PolicyFromConfig(config.Fetch), logger, m)

	performanceService := performance.NewService(universeProvider, fetcher, resultCache,
		performance.ConfigFromCommon(config), logger, m)
	fluctuationService := fluctuation.NewService(universeProvider, fetcher, resultCache,
		fluctuation.ConfigFromCommon(config), logger, m)

	a := &App{
		Config:             config,
		Logger:             logger,
		Metrics:            m,
		Cache:              resultCache,
		EODHDClient:        eodhdClient,
		YahooClient:        yahooClient,
		Universe:           universeProvider,
		Fetcher:            fetcher,
		PerformanceService: performanceService,
		FluctuationService: fluctuationService,
		StartupTime:        startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: stop scheduler, cancel warm cache, close cache backend.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	if a.warmCacheCancel != nil {
		a.warmCacheCancel()
		a.warmCacheCancel = nil
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cache backend")
		}
		a.Cache = nil
	}
}

// StartWarmCache launches the background cache warming goroutine.
func (a *App) StartWarmCache() {
	if len(a.Config.Scheduler.WarmMarkets) == 0 {
		return
	}
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*a.Config.Screening.GetRequestTimeout()*time.Duration(len(a.Config.Scheduler.WarmMarkets)))
	a.warmCacheCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.PerformanceService, a.Config.Scheduler, time.Now, a.Logger)
	}()
}

// StartScheduler registers and starts the background jobs.
func (a *App) StartScheduler() error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Scheduler disabled")
		return nil
	}
	s := NewScheduler(a.Universe, a.Cache, a.Logger)
	if err := s.Register(a.Config.Scheduler); err != nil {
		return err
	}
	s.Start()
	a.scheduler = s
	return nil
}
