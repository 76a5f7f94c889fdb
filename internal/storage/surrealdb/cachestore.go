// Package surrealdb implements the persistent result cache tier on SurrealDB.
package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
)

const cacheTable = "result_cache"

// cacheRecord is one cached value. Value holds the JSON text of the result.
type cacheRecord struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CacheStore implements interfaces.CacheBackend on a SurrealDB table.
// The connection is opened on first use and reopened by Ping after a failure,
// so an unreachable server never prevents startup.
type CacheStore struct {
	mu     sync.Mutex
	db     *surrealdb.DB
	dial   func(ctx context.Context) (*surrealdb.DB, error)
	logger *common.Logger
	now    func() time.Time
}

// Open creates a store for cfg and tries to connect once. A failed attempt is
// logged; the cache's health probe retries through Ping.
func Open(ctx context.Context, cfg common.StorageConfig, logger *common.Logger) *CacheStore {
	s := &CacheStore{
		dial:   func(ctx context.Context) (*surrealdb.DB, error) { return connect(ctx, cfg) },
		logger: logger,
		now:    time.Now,
	}

	if _, err := s.conn(ctx); err != nil {
		logger.Warn().
			Str("address", cfg.Address).
			Err(err).
			Msg("SurrealDB unreachable, cache store will reconnect on demand")
		return s
	}

	logger.Info().
		Str("address", cfg.Address).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("SurrealDB cache store initialized")
	return s
}

// connect opens a connection, signs in, selects the namespace and database,
// and makes sure the cache table exists.
func connect(ctx context.Context, cfg common.StorageConfig) (*surrealdb.DB, error) {
	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	if err := defineTable(ctx, db); err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

func defineTable(ctx context.Context, db *surrealdb.DB) error {
	sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", cacheTable)
	if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
		return fmt.Errorf("failed to define table %s: %w", cacheTable, err)
	}
	return nil
}

// NewCacheStore wraps an open connection and defines the cache table.
func NewCacheStore(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*CacheStore, error) {
	if err := defineTable(ctx, db); err != nil {
		return nil, err
	}
	return &CacheStore{db: db, logger: logger, now: time.Now}, nil
}

// conn returns the open connection, dialling when there is none.
func (s *CacheStore) conn(ctx context.Context) (*surrealdb.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	if s.dial == nil {
		return nil, errors.New("surrealdb connection closed")
	}
	db, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.db = db
	return db, nil
}

// drop discards a connection that failed so the next call redials.
func (s *CacheStore) drop(db *surrealdb.DB) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != db || s.dial == nil {
		return
	}
	s.db = nil
	if err := db.Close(context.Background()); err != nil {
		s.logger.Debug().Err(err).Msg("SurrealDB connection close failed")
	}
}

func (s *CacheStore) Name() string {
	return "surrealdb"
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	rec, err := surrealdb.Select[cacheRecord](ctx, db, surrealmodels.NewRecordID(cacheTable, key))
	if err != nil {
		return nil, false, fmt.Errorf("failed to select cache record: %w", err)
	}
	if rec == nil || rec.Key == "" {
		return nil, false, nil
	}
	if !s.now().Before(rec.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Debug().Str("key", key).Err(err).Msg("Expired cache record not removed")
		}
		return nil, false, nil
	}
	return []byte(rec.Value), true, nil
}

func (s *CacheStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	rec := cacheRecord{
		Key:       key,
		Value:     string(value),
		ExpiresAt: s.now().Add(ttl),
	}

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("UPSERT type::record('%s', $id) CONTENT $rec", cacheTable)
	vars := map[string]any{"id": key, "rec": rec}

	if _, err := surrealdb.Query[[]cacheRecord](ctx, db, sql, vars); err != nil {
		return fmt.Errorf("failed to save cache record: %w", err)
	}
	return nil
}

// KeysMatching selects live keys and filters them with the glob pattern.
func (s *CacheStore) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	type keyResult struct {
		Key string `json:"key"`
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT key FROM %s WHERE expires_at > $now", cacheTable)
	results, err := surrealdb.Query[[]keyResult](ctx, db, sql, map[string]any{"now": s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}

	var keys []string
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			if ok, _ := path.Match(pattern, r.Key); ok {
				keys = append(keys, r.Key)
			}
		}
	}
	return keys, nil
}

func (s *CacheStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf("DELETE %s WHERE key IN $keys", cacheTable)
	if _, err := surrealdb.Query[any](ctx, db, sql, map[string]any{"keys": keys}); err != nil {
		return fmt.Errorf("failed to delete cache records: %w", err)
	}
	return nil
}

// Ping checks the connection, reconnecting when there is none. A failed
// query drops the connection so the next Ping starts fresh.
func (s *CacheStore) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return fmt.Errorf("surrealdb ping: %w", err)
	}
	if _, err := surrealdb.Query[any](ctx, db, "RETURN true", nil); err != nil {
		s.drop(db)
		return fmt.Errorf("surrealdb ping: %w", err)
	}
	return nil
}

func (s *CacheStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dial = nil
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close(context.Background())
}

var _ interfaces.CacheBackend = (*CacheStore)(nil)
