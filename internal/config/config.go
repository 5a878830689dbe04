// Package config loads the overview server configuration from an optional
// YAML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/client"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/dashboard"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/overview"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/pagination"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/status"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Client     ClientConfig     `yaml:"client"`
	Subgraph   SubgraphConfig   `yaml:"subgraph"`
	Pagination PaginationConfig `yaml:"pagination"`
	Log        logging.Config   `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port string `yaml:"port"`
	// LoadTimeout bounds one overview load
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

// RedisConfig configures the optional Redis connection. An empty URL
// disables caching and the shared error budget.
type RedisConfig struct {
	// URL is either host:port or a redis:// URL
	URL string `yaml:"url"`
	DB  int    `yaml:"db"`
}

// ClientConfig configures the GraphQL client.
type ClientConfig struct {
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	MaxRetries int           `yaml:"max_retries"`
}

// SubgraphConfig locates the subgraphs and the index node.
type SubgraphConfig struct {
	// BaseURL prefixes subgraph names
	BaseURL string `yaml:"base_url"`
	// IndexNodeURL answers indexing status queries
	IndexNodeURL string `yaml:"index_node_url"`
	// HostedRoot serves deployments by id
	HostedRoot string `yaml:"hosted_root"`
}

// PaginationConfig configures the pool overview pages.
type PaginationConfig struct {
	PageSize   int           `yaml:"page_size"`
	MaxPages   int           `yaml:"max_pages"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	pages := pagination.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			LoadTimeout: 60 * time.Second,
		},
		Client: ClientConfig{
			UserAgent: "subgraph-dashboard-client/0.1.0",
			Timeout:   30 * time.Second,
			CacheTTL:  5 * time.Minute,
		},
		Subgraph: SubgraphConfig{
			BaseURL:      dashboard.DefaultBaseURL,
			IndexNodeURL: status.DefaultIndexNodeURL,
			HostedRoot:   dashboard.HostedRoot,
		},
		Pagination: PaginationConfig{
			PageSize:   pages.PageSize,
			MaxPages:   pages.MaxPages,
			Retries:    pages.MaxRetries,
			RetryDelay: pages.RetryDelay,
		},
		Log: logging.Config{Level: logging.LevelInfo},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Server.Port)
	dur("LOAD_TIMEOUT", &c.Server.LoadTimeout)
	str("REDIS_URL", &c.Redis.URL)
	str("USER_AGENT", &c.Client.UserAgent)
	dur("CACHE_TTL", &c.Client.CacheTTL)
	num("MAX_RETRIES", &c.Client.MaxRetries)
	str("SUBGRAPH_BASE_URL", &c.Subgraph.BaseURL)
	str("INDEX_NODE_URL", &c.Subgraph.IndexNodeURL)
	str("HOSTED_ROOT", &c.Subgraph.HostedRoot)
	num("PAGE_SIZE", &c.Pagination.PageSize)
	num("MAX_PAGES", &c.Pagination.MaxPages)
	num("PAGE_RETRIES", &c.Pagination.Retries)

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = logging.LogLevel(v)
	}
	if v, ok := lookup("LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("LOG_PRETTY: %v", err))
		} else {
			c.Log.Pretty = b
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port == "" {
		errs = append(errs, "server port is required")
	}
	if c.Client.UserAgent == "" {
		errs = append(errs, "user agent is required")
	}
	if c.Client.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("max retries must be >= 0 (got %d)", c.Client.MaxRetries))
	}
	if !dashboard.IsValidHTTPURL(c.Subgraph.BaseURL) {
		errs = append(errs, fmt.Sprintf("subgraph base url %q is not an http(s) url", c.Subgraph.BaseURL))
	} else if !strings.HasSuffix(c.Subgraph.BaseURL, "/") {
		errs = append(errs, "subgraph base url must end with /")
	}
	if !dashboard.IsValidHTTPURL(c.Subgraph.IndexNodeURL) {
		errs = append(errs, fmt.Sprintf("index node url %q is not an http(s) url", c.Subgraph.IndexNodeURL))
	}
	if !dashboard.IsValidHTTPURL(c.Subgraph.HostedRoot) {
		errs = append(errs, fmt.Sprintf("hosted root %q is not an http(s) url", c.Subgraph.HostedRoot))
	}
	if c.Pagination.PageSize < 1 {
		errs = append(errs, fmt.Sprintf("page size must be >= 1 (got %d)", c.Pagination.PageSize))
	}
	if c.Pagination.MaxPages < 1 {
		errs = append(errs, fmt.Sprintf("max pages must be >= 1 (got %d)", c.Pagination.MaxPages))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RedisOptions returns connection options, nil when Redis is disabled.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL == "" {
		return nil, nil
	}
	if strings.Contains(c.Redis.URL, "://") {
		opts, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.Redis.URL, DB: c.Redis.DB}, nil
}

// ClientConfig returns the GraphQL client settings.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(rdb, c.Client.UserAgent)
	if c.Client.Timeout > 0 {
		cfg.Timeout = c.Client.Timeout
	}
	cfg.CacheTTL = c.Client.CacheTTL
	cfg.MaxRetries = c.Client.MaxRetries
	return cfg
}

// OverviewConfig returns the pipeline settings.
func (c *Config) OverviewConfig() overview.Config {
	pages := pagination.DefaultConfig()
	pages.PageSize = c.Pagination.PageSize
	pages.MaxPages = c.Pagination.MaxPages
	pages.MaxRetries = c.Pagination.Retries
	if c.Pagination.RetryDelay > 0 {
		pages.RetryDelay = c.Pagination.RetryDelay
	}
	return overview.Config{
		Pagination:   pages,
		IndexNodeURL: c.Subgraph.IndexNodeURL,
		HostedRoot:   c.Subgraph.HostedRoot,
	}
}

// String returns a loggable summary with the Redis password masked.
func (c *Config) String() string {
	redisURL := c.Redis.URL
	if i := strings.Index(redisURL, "@"); i >= 0 {
		if j := strings.Index(redisURL, "://"); j >= 0 && j < i {
			redisURL = redisURL[:j+3] + "****" + redisURL[i:]
		}
	}
	return fmt.Sprintf("Config{Port=%s, Redis=%s, BaseURL=%s, IndexNode=%s, PageSize=%d, MaxPages=%d}",
		c.Server.Port, redisURL, c.Subgraph.BaseURL, c.Subgraph.IndexNodeURL,
		c.Pagination.PageSize, c.Pagination.MaxPages)
}
