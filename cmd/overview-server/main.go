// Command overview-server serves subgraph pool overviews, indexing status
// and dashboard navigation links over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/internal/config"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/client"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/overview"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/status"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log)
	logger := logging.NewLogger(logging.ComponentServer)
	logger.Info().Str("config", cfg.String()).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info().Msg("Redis connected - response cache and error budget enabled")
	} else {
		logger.Info().Msg("Redis disabled - REDIS_URL not set")
	}

	subgraphClient, err := client.New(cfg.ClientConfig(rdb))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create subgraph client")
	}
	defer subgraphClient.Close()

	server := NewServer(
		overview.NewService(subgraphClient, cfg.OverviewConfig()),
		status.NewChecker(subgraphClient, cfg.Subgraph.IndexNodeURL),
		ServerOptions{
			Redis:       rdb,
			BaseURL:     cfg.Subgraph.BaseURL,
			HostedRoot:  cfg.Subgraph.HostedRoot,
			LoadTimeout: cfg.Server.LoadTimeout,
			Purger:      subgraphClient,
		},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("user_agent", cfg.Client.UserAgent).Msg("Starting overview server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// connectRedis returns nil when Redis is not configured.
func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := cfg.RedisOptions()
	if err != nil || opts == nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
