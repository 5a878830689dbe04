package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const testEndpoint = "https://api.thegraph.com/subgraphs/name/messari/aave-v2-ethereum"

// setupTestRedis connects to a local Redis and skips when none is running.
// The integration-tagged tests use testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(setupTestRedis(t), opts)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func pageKey(endpoint string, skip int) CacheKey {
	return CacheKey{
		Endpoint:  endpoint,
		Query:     "query Data($skipAmt: Int!) { markets(first: 10, skip: $skipAmt) { id } }",
		Variables: map[string]any{"skipAmt": skip},
	}
}

func freshEntry(endpoint, body string) *Entry {
	return NewEntry(endpoint, nil, []byte(body), 5*time.Minute, time.Now())
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	m, err := NewManager(client, Options{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.maxBytes != DefaultMaxEntryBytes {
		t.Errorf("maxBytes = %d, want %d", m.maxBytes, DefaultMaxEntryBytes)
	}

	if _, err := NewManager(nil, Options{}); err == nil {
		t.Error("NewManager should reject a nil redis client")
	}
}

func TestManager_SetAndGet(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	key := pageKey(testEndpoint, 0)
	entry := freshEntry(testEndpoint, `{"data":{"markets":[{"id":"0x1"}]}}`)

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Body) != string(entry.Body) {
		t.Errorf("Body = %s, want %s", got.Body, entry.Body)
	}
	if got.Endpoint != testEndpoint {
		t.Errorf("Endpoint = %s, want %s", got.Endpoint, testEndpoint)
	}

	// another skip is another entry
	if _, err := m.Get(ctx, pageKey(testEndpoint, 10)); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for other page, got %v", err)
	}
}

func TestManager_StaleEntries(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()
	key := pageKey(testEndpoint, 0)

	stale := NewEntry(testEndpoint, nil, []byte(`{"data":{}}`), -time.Hour, time.Now())
	if err := m.Set(ctx, key, stale); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Stale entry must not be stored, got %v", err)
	}

	// an entry that goes stale while stored in Redis
	if err := m.Set(ctx, key, freshEntry(testEndpoint, `{"data":{}}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss once stale, got %v", err)
	}
}

func TestManager_EntryTooLarge(t *testing.T) {
	m := newTestManager(t, Options{MaxEntryBytes: 16})
	ctx := context.Background()

	err := m.Set(ctx, pageKey(testEndpoint, 0), freshEntry(testEndpoint, `{"data":{"markets":[]}}`))
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Errorf("Expected ErrEntryTooLarge, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()
	key := pageKey(testEndpoint, 0)

	if err := m.Set(ctx, key, freshEntry(testEndpoint, `{"data":{}}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Purge(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()
	other := "https://api.thegraph.com/subgraphs/name/messari/uniswap-v3-ethereum"

	for skip := 0; skip < 30; skip += 10 {
		if err := m.Set(ctx, pageKey(testEndpoint, skip), freshEntry(testEndpoint, `{"data":{}}`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := m.Set(ctx, pageKey(other, 0), freshEntry(other, `{"data":{}}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	n, err := m.Purge(ctx, testEndpoint)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Purge removed %d entries, want 3", n)
	}

	for skip := 0; skip < 30; skip += 10 {
		if _, err := m.Get(ctx, pageKey(testEndpoint, skip)); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("skip %d: expected ErrCacheMiss after Purge, got %v", skip, err)
		}
	}
	if _, err := m.Get(ctx, pageKey(other, 0)); err != nil {
		t.Errorf("Purge must leave other endpoints alone: %v", err)
	}

	// nothing left to purge
	if n, err := m.Purge(ctx, testEndpoint); err != nil || n != 0 {
		t.Errorf("second Purge = %d, %v; want 0, nil", n, err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	m := newTestManager(t, Options{})
	if err := m.Set(context.Background(), pageKey(testEndpoint, 0), nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestIndexKey(t *testing.T) {
	got := IndexKey("https://API.thegraph.com/subgraphs/name/org/x/")
	if got != "subgraph-index:api.thegraph.com/subgraphs/name/org/x" {
		t.Errorf("IndexKey = %s", got)
	}
	if strings.HasPrefix(got, "subgraph:") {
		t.Error("index keys must not collide with entry keys")
	}
}
