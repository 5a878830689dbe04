package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrEntryTooLarge is returned by Set for bodies above MaxEntryBytes
	ErrEntryTooLarge = errors.New("cache entry too large")
)

const (
	// DefaultMaxEntryBytes bounds a single cached response.
	DefaultMaxEntryBytes = 1 << 20

	// minIndexTTL keeps an endpoint index alive across short-lived entries.
	minIndexTTL = 10 * time.Minute
)

// Options configures a Manager.
type Options struct {
	// MaxEntryBytes; zero means DefaultMaxEntryBytes
	MaxEntryBytes int
}

// Manager stores GraphQL responses in Redis. Every entry is also recorded
// in a per-endpoint index so one endpoint can be purged at once.
type Manager struct {
	redis    *redis.Client
	maxBytes int
	now      func() time.Time
}

// NewManager creates a manager; rdb must not be nil.
func NewManager(rdb *redis.Client, opts Options) (*Manager, error) {
	if rdb == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = DefaultMaxEntryBytes
	}
	return &Manager{
		redis:    rdb,
		maxBytes: opts.MaxEntryBytes,
		now:      time.Now,
	}, nil
}

// Get returns the fresh entry stored under key, ErrCacheMiss otherwise.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheLookups.WithLabelValues("miss").Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry has second granularity
	if !entry.Fresh(m.now()) {
		cacheLookups.WithLabelValues("stale").Inc()
		return nil, ErrCacheMiss
	}

	cacheLookups.WithLabelValues("hit").Inc()
	cacheBytes.WithLabelValues("read").Add(float64(len(data)))
	return &entry, nil
}

// Set stores entry under key until it expires. Entries that are no longer
// fresh are dropped without error.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	if len(entry.Body) > m.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, len(entry.Body))
	}

	ttl := entry.Remaining(m.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	indexTTL := ttl
	if indexTTL < minIndexTTL {
		indexTTL = minIndexTTL
	}

	k := key.String()
	index := IndexKey(key.Endpoint)
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, data, ttl)
		pipe.SAdd(ctx, index, k)
		pipe.Expire(ctx, index, indexTTL)
		return nil
	})
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	cacheBytes.WithLabelValues("write").Add(float64(len(data)))
	return nil
}

// Delete removes one entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge removes every entry cached for endpoint and returns how many
// entries existed.
func (m *Manager) Purge(ctx context.Context, endpoint string) (int64, error) {
	index := IndexKey(endpoint)

	keys, err := m.redis.SMembers(ctx, index).Result()
	if err != nil {
		cacheErrors.WithLabelValues("purge").Inc()
		return 0, fmt.Errorf("redis smembers: %w", err)
	}

	var deleted *redis.IntCmd
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		cacheErrors.WithLabelValues("purge").Inc()
		return 0, fmt.Errorf("redis del: %w", err)
	}

	if deleted == nil {
		return 0, nil
	}
	cachePurged.Add(float64(deleted.Val()))
	return deleted.Val(), nil
}
