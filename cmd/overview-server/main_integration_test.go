//go:build integration

package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sternrassler/subgraph-dashboard-client/internal/testutil"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/client"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/overview"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/status"
)

func TestReadyEndpoint_Redis(t *testing.T) {
	redisClient := testutil.StartRedis(t)

	mock := testutil.NewMockSubgraph()
	defer mock.Close()

	c, err := client.New(client.DefaultConfig(redisClient, "test/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	server := NewServer(
		overview.NewService(c, overview.Config{IndexNodeURL: mock.IndexNodeURL(), HostedRoot: mock.URL()}),
		status.NewChecker(c, mock.IndexNodeURL()),
		ServerOptions{Redis: redisClient, BaseURL: mock.BaseURL(), HostedRoot: mock.URL()},
	)
	handler := server.Handler()

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		if string(body) != "OK" {
			t.Errorf("Expected body 'OK', got %s", string(body))
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient.Close()

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Result().StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Result().StatusCode)
		}
	})
}

func TestOverviewEndpoint_CachedRepeat(t *testing.T) {
	redisClient := testutil.StartRedis(t)

	mock := testutil.NewMockSubgraph()
	defer mock.Close()
	mock.SetPools(testutil.GeneratePools(5))

	c, err := client.New(client.DefaultConfig(redisClient, "test/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	server := NewServer(
		overview.NewService(c, overview.Config{IndexNodeURL: mock.IndexNodeURL(), HostedRoot: mock.URL()}),
		status.NewChecker(c, mock.IndexNodeURL()),
		ServerOptions{Redis: redisClient, BaseURL: mock.BaseURL(), HostedRoot: mock.URL(), Purger: c},
	)
	handler := server.Handler()

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/overview?endpoint=org/uniswap", nil))
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Result().StatusCode)
		}
	}

	// the second load is answered from the response cache
	if got := mock.RequestCount(testutil.KindPools); got != 1 {
		t.Errorf("Expected 1 pool page request, got %d", got)
	}
}

func TestOverviewEndpoint_RefreshPurgesCache(t *testing.T) {
	redisClient := testutil.StartRedis(t)

	mock := testutil.NewMockSubgraph()
	defer mock.Close()
	mock.SetPools(testutil.GeneratePools(5))

	c, err := client.New(client.DefaultConfig(redisClient, "test/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	server := NewServer(
		overview.NewService(c, overview.Config{IndexNodeURL: mock.IndexNodeURL(), HostedRoot: mock.URL()}),
		status.NewChecker(c, mock.IndexNodeURL()),
		ServerOptions{Redis: redisClient, BaseURL: mock.BaseURL(), HostedRoot: mock.URL(), Purger: c},
	)
	handler := server.Handler()

	for _, path := range []string{
		"/api/overview?endpoint=org/uniswap",
		"/api/overview?endpoint=org/uniswap&refresh=true",
	} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Result().StatusCode)
		}
	}

	if got := mock.RequestCount(testutil.KindPools); got != 2 {
		t.Errorf("Expected 2 pool page requests after refresh, got %d", got)
	}
}
