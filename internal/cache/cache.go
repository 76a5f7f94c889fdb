package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/metrics"
	"github.com/bobmcallan/screener/internal/models"
)

const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 100
	DefaultNamespace  = "screener"

	// DefaultReprobeInterval spaces the lazy health probes of an unhealthy backend.
	DefaultReprobeInterval = 30 * time.Second

	pingTimeout = 2 * time.Second
)

// envelope is the persistent form of an entry. It carries the insertion time
// and TTL so a read-through copy expires together with the original.
type envelope struct {
	InsertedAt time.Time       `json:"inserted_at"`
	TTLMillis  int64           `json:"ttl_ms"`
	Value      json.RawMessage `json:"value"`
}

func (e envelope) expiresAt() time.Time {
	return e.InsertedAt.Add(time.Duration(e.TTLMillis) * time.Millisecond)
}

// ResultCache is a process-wide cache of computed results with an in-process
// tier and an optional persistent tier. The persistent tier, when reachable,
// is the tier of record: written through on Set and read through on an
// in-process miss.
//
// Backend failures never reach callers. They are logged, treated as misses,
// and take the backend out of use until a probe succeeds again. Probes run
// from Probe and lazily from Get/Set/Stats, at most once per reprobe interval.
//
// Concurrent requests for the same key may both miss and both recompute;
// there is no single-flight coordination.
type ResultCache struct {
	namespace string
	ttl       time.Duration
	memory    *memoryTier
	backend   interfaces.CacheBackend
	healthy   atomic.Bool
	nextProbe atomic.Int64 // unix nanos before which no lazy probe runs
	reprobe   time.Duration
	logger    *common.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures the cache
type Option func(*ResultCache)

// WithBackend sets the persistent tier
func WithBackend(backend interfaces.CacheBackend) Option {
	return func(c *ResultCache) {
		c.backend = backend
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(c *ResultCache) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ResultCache) {
		c.metrics = m
	}
}

// WithTTL sets the default entry TTL
func WithTTL(ttl time.Duration) Option {
	return func(c *ResultCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the in-process tier
func WithMaxEntries(n int) Option {
	return func(c *ResultCache) {
		c.memory = newMemoryTier(n)
	}
}

// WithNamespace sets the key namespace shared by both tiers
func WithNamespace(ns string) Option {
	return func(c *ResultCache) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithReprobeInterval sets the minimum spacing of lazy backend probes
func WithReprobeInterval(d time.Duration) Option {
	return func(c *ResultCache) {
		if d > 0 {
			c.reprobe = d
		}
	}
}

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		c.now = now
	}
}

// New creates the cache. When a backend is configured it is pinged once;
// an unreachable backend leaves the cache running in-process only.
func New(ctx context.Context, opts ...Option) *ResultCache {
	c := &ResultCache{
		namespace: DefaultNamespace,
		ttl:       DefaultTTL,
		reprobe:   DefaultReprobeInterval,
		memory:    newMemoryTier(DefaultMaxEntries),
		logger:    common.NewSilentLogger(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.backend != nil && !c.Probe(ctx) {
		c.logger.Warn().Str("backend", c.backend.Name()).Msg("Cache backend unreachable at startup, using in-process tier only")
	}

	return c
}

// TTL returns the default entry TTL.
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

func (c *ResultCache) physical(key interfaces.CacheKey) string {
	return c.namespace + ":" + key.String()
}

// backendUsable reports whether the backend may be used. An unhealthy backend
// is probed again once its reprobe time has passed; one caller wins the probe.
func (c *ResultCache) backendUsable(ctx context.Context) bool {
	if c.backend == nil {
		return false
	}
	if c.healthy.Load() {
		return true
	}

	next := c.nextProbe.Load()
	now := c.now().UnixNano()
	if now < next || !c.nextProbe.CompareAndSwap(next, now+int64(c.reprobe)) {
		return false
	}
	return c.Probe(ctx)
}

func (c *ResultCache) deferProbe() {
	c.nextProbe.Store(c.now().Add(c.reprobe).UnixNano())
}

// Get decodes the cached value for key into dest and reports whether it was found.
func (c *ResultCache) Get(ctx context.Context, key interfaces.CacheKey, dest any) bool {
	k := c.physical(key)

	if data, ok := c.memory.get(k, c.now()); ok {
		if err := json.Unmarshal(data, dest); err == nil {
			c.metrics.CacheResult("memory", "hit")
			return true
		}
	}
	c.metrics.CacheResult("memory", "miss")

	if !c.backendUsable(ctx) {
		return false
	}

	data, found, err := c.backend.Get(ctx, k)
	if err != nil {
		c.backendFailed("get", k, err)
		return false
	}
	if !found {
		c.metrics.CacheResult(c.backend.Name(), "miss")
		return false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Value) == 0 {
		c.logger.Warn().Str("key", k).Err(err).Msg("Cache entry could not be decoded, ignoring")
		return false
	}
	// The backend's own expiry may lag ours (clock skew, lazy deletion).
	if !c.now().Before(env.expiresAt()) {
		c.metrics.CacheResult(c.backend.Name(), "miss")
		return false
	}
	if err := json.Unmarshal(env.Value, dest); err != nil {
		c.logger.Warn().Str("key", k).Err(err).Msg("Cache entry could not be decoded, ignoring")
		return false
	}

	c.metrics.CacheResult(c.backend.Name(), "hit")
	c.memory.set(k, env.Value, time.Duration(env.TTLMillis)*time.Millisecond, env.InsertedAt)
	return true
}

// Set stores value under key in both tiers. A ttl of zero uses the default.
func (c *ResultCache) Set(ctx context.Context, key interfaces.CacheKey, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	k := c.physical(key)

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Str("key", k).Err(err).Msg("Cache value could not be encoded, skipping")
		return
	}

	now := c.now()
	c.memory.set(k, data, ttl, now)

	if !c.backendUsable(ctx) {
		return
	}
	stored, err := json.Marshal(envelope{InsertedAt: now, TTLMillis: ttl.Milliseconds(), Value: data})
	if err != nil {
		c.logger.Warn().Str("key", k).Err(err).Msg("Cache envelope could not be encoded, skipping backend")
		return
	}
	if err := c.backend.SetWithExpiry(ctx, k, stored, ttl); err != nil {
		c.backendFailed("set", k, err)
	}
}

// Clear removes every entry of market from both tiers, or every entry in the
// namespace when market is empty. It returns the number of distinct keys removed.
func (c *ResultCache) Clear(ctx context.Context, market string) int {
	pattern := c.namespace + ":*"
	if market != "" {
		pattern = c.namespace + ":*:" + marketSegment(market) + ":*"
	}

	removed := make(map[string]struct{})
	for _, k := range c.memory.deleteMatching(pattern) {
		removed[k] = struct{}{}
	}

	// Attempted even when unhealthy so stale keys cannot resurface after recovery.
	if c.backend != nil {
		keys, err := c.backend.KeysMatching(ctx, pattern)
		if err != nil {
			c.backendFailed("keys", pattern, err)
		} else if len(keys) > 0 {
			if err := c.backend.Delete(ctx, keys...); err != nil {
				c.backendFailed("delete", pattern, err)
			} else {
				for _, k := range keys {
					removed[k] = struct{}{}
				}
			}
		}
	}

	c.logger.Info().
		Str("pattern", pattern).
		Int("removed", len(removed)).
		Msg("Cache cleared")

	return len(removed)
}

// Stats reports the state of both tiers.
func (c *ResultCache) Stats(ctx context.Context) models.CacheStats {
	stats := models.CacheStats{
		Enabled:       c.backendUsable(ctx),
		Backend:       "memory",
		SizeInProcess: c.memory.size(c.now()),
		TTLSeconds:    int(c.ttl.Seconds()),
	}
	if c.backend != nil {
		stats.Backend = c.backend.Name()
	}

	if stats.Enabled {
		keys, err := c.backend.KeysMatching(ctx, c.namespace+":*")
		if err != nil {
			c.backendFailed("keys", c.namespace+":*", err)
			stats.Enabled = false
		} else {
			stats.SizePersistent = len(keys)
		}
	}

	return stats
}

// Probe pings the backend and brings it back into use when reachable.
// It reports whether the backend is usable afterwards.
func (c *ResultCache) Probe(ctx context.Context) bool {
	if c.backend == nil {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.backend.Ping(pingCtx); err != nil {
		c.deferProbe()
		if c.healthy.Swap(false) {
			c.logger.Warn().Str("backend", c.backend.Name()).Err(err).Msg("Cache backend unreachable, using in-process tier only")
		} else {
			c.logger.Debug().Str("backend", c.backend.Name()).Err(err).Msg("Cache backend still unreachable")
		}
		return false
	}

	if !c.healthy.Swap(true) {
		c.logger.Info().Str("backend", c.backend.Name()).Msg("Cache backend connected")
	}
	return true
}

// Close releases the backend connection.
func (c *ResultCache) Close() error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

func (c *ResultCache) backendFailed(op, key string, err error) {
	c.metrics.CacheResult(c.backend.Name(), "error")
	c.logger.Warn().
		Str("backend", c.backend.Name()).
		Str("op", op).
		Str("key", key).
		Err(err).
		Msg("Cache backend failure, continuing without it")
	c.deferProbe()
	c.healthy.Store(false)
}

var _ interfaces.ResultCache = (*ResultCache)(nil)
