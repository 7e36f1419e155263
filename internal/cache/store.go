package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spigell/resume-refiner/internal/metrics"
)

const createSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	strategy TEXT NOT NULL,
	prompt_hash TEXT NOT NULL,
	response BLOB NOT NULL,
	ttl_seconds INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	tokens_in INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cache_links (
	cache_key TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	PRIMARY KEY (cache_key, entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_cache_links_entity ON cache_links (entity_type, entity_id);
`

// Computed is the result of a cache-miss computation: the serialized response
// plus optional token accounting reported by the provider.
type Computed struct {
	Response  []byte
	TokensIn  int
	TokensOut int
}

// ComputeFunc produces the value for a cache miss. A failed computation is
// never cached.
type ComputeFunc func(ctx context.Context) (*Computed, error)

// Store is a content-addressed response cache backed by SQLite, with a
// secondary index linking entries to the domain entities their data was
// derived from so those entries can be evicted without clearing everything.
type Store struct {
	db       *sql.DB
	counters *metrics.Counters
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Open creates (or opens) the cache database at path and ensures the schema.
func Open(path string, counters *metrics.Counters, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	if counters == nil {
		counters = &metrics.Counters{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		db:       db,
		counters: counters,
		logger:   logger,
		inflight: make(map[string]*keyLock),
	}, nil
}

// Counters exposes the hit/miss/expired tallies owned by this store.
func (s *Store) Counters() *metrics.Counters {
	return s.counters
}

// GetOrCompute returns the cached response for (model, strategy, prompt) when
// a fresh entry exists, computing and persisting it otherwise. Entity links
// are written only when the entry is first created. Concurrent callers on the
// same fingerprint collapse to a single computation and a single stored row;
// losers of an insert race transparently read the winner's value.
//
// The computation runs detached from the caller's cancellation so that a
// cancelled session still populates the cache for the next one; the
// cancelling caller gets ctx.Err back instead of a result.
func (s *Store) GetOrCompute(ctx context.Context, model, strategy, prompt string, ttl time.Duration, links map[string]string, compute ComputeFunc) ([]byte, error) {
	promptHash := HashPrompt(prompt)
	key := fingerprintFromHash(model, strategy, promptHash)

	lock := s.acquire(key)
	defer s.release(key, lock)

	response, state, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	switch state {
	case lookupFresh:
		s.counters.Hit()
		return response, nil
	case lookupExpired:
		s.counters.Expired()
		if _, err := s.deleteByKey(ctx, key); err != nil {
			return nil, fmt.Errorf("evict expired entry: %w", err)
		}
	default:
		s.counters.Miss()
	}

	computed, err := compute(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	stored, err := s.insert(context.WithoutCancel(ctx), key, model, strategy, promptHash, ttl, computed, links)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return stored, nil
}

type lookupState int

const (
	lookupMissing lookupState = iota
	lookupFresh
	lookupExpired
)

func (s *Store) lookup(ctx context.Context, key string) ([]byte, lookupState, error) {
	var response []byte
	var ttlSeconds int64
	var createdAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT response, ttl_seconds, created_at FROM cache_entries WHERE cache_key = ?`,
		key,
	).Scan(&response, &ttlSeconds, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, lookupMissing, nil
	}
	if err != nil {
		return nil, lookupMissing, fmt.Errorf("cache lookup: %w", err)
	}

	if time.Since(createdAt) > time.Duration(ttlSeconds)*time.Second {
		return nil, lookupExpired, nil
	}

	return response, lookupFresh, nil
}

// insert persists the computed value. When another caller won an insert race
// on the same key, the freshly computed value is discarded and the winning
// row is returned instead; the race never surfaces as an error.
func (s *Store) insert(ctx context.Context, key, model, strategy, promptHash string, ttl time.Duration, computed *Computed, links map[string]string) ([]byte, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, model, strategy, prompt_hash, response, ttl_seconds, created_at, tokens_in, tokens_out)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, model, strategy, promptHash, computed.Response,
		int64(ttl.Seconds()), time.Now().UTC(), computed.TokensIn, computed.TokensOut,
	)
	if err != nil {
		winner, state, lookupErr := s.lookup(ctx, key)
		if lookupErr == nil && state == lookupFresh {
			s.logger.Debug("lost cache insert race, using winning row", zap.String("cache_key", key))
			return winner, nil
		}
		return nil, fmt.Errorf("cache insert: %w", err)
	}

	for entityType, entityID := range links {
		if entityID == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO cache_links (cache_key, entity_type, entity_id) VALUES (?, ?, ?)`,
			key, entityType, entityID,
		); err != nil {
			return nil, fmt.Errorf("cache link insert: %w", err)
		}
	}

	return computed.Response, nil
}

// InvalidateByEntity deletes every cache entry linked to the given entity,
// cascading deletion of the link rows. It returns the number of entries
// deleted; zero matches is not an error.
func (s *Store) InvalidateByEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin invalidation: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key IN
		 (SELECT cache_key FROM cache_links WHERE entity_type = ? AND entity_id = ?)`,
		entityType, entityID,
	)
	if err != nil {
		return 0, fmt.Errorf("invalidate entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate entries: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cache_links WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	); err != nil {
		return 0, fmt.Errorf("invalidate links: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit invalidation: %w", err)
	}

	s.counters.InvalidationDeleted(deleted)

	return deleted, nil
}

// InvalidateByKey deletes a single entry by exact cache key if present.
func (s *Store) InvalidateByKey(ctx context.Context, key string) (int64, error) {
	deleted, err := s.deleteByKey(ctx, key)
	if err != nil {
		return 0, err
	}

	s.counters.InvalidationDeleted(deleted)

	return deleted, nil
}

func (s *Store) deleteByKey(ctx context.Context, key string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key)
	if err != nil {
		return 0, fmt.Errorf("delete entry: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_links WHERE cache_key = ?`, key); err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}

	return result.RowsAffected()
}

// EntryCount returns the number of persisted cache entries.
func (s *Store) EntryCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// acquire takes the per-fingerprint lock so that at most one computation per
// key runs in this process at a time.
func (s *Store) acquire(key string) *keyLock {
	s.mu.Lock()
	lock, ok := s.inflight[key]
	if !ok {
		lock = &keyLock{}
		s.inflight[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (s *Store) release(key string, lock *keyLock) {
	lock.mu.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.inflight, key)
	}
	s.mu.Unlock()
}
