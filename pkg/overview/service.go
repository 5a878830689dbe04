// Package overview loads the pool overview of a subgraph: it detects the
// protocol, pages through its pools, enriches each page with token and
// volume overlays while the next page loads, then merges and sorts.
package overview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/client"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/dashboard"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/diagnostics"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/overlay"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/pagination"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/record"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/schema"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	overviewLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_overview_loads_total",
		Help: "Total pool overview loads by outcome (ok, banner, cancelled)",
	}, []string{"outcome"})

	overviewLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "subgraph_overview_load_duration_seconds",
		Help:    "Duration of a full pool overview load",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	})

	overviewPools = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "subgraph_overview_pools",
		Help:    "Number of pools returned per overview load",
		Buckets: []float64{0, 10, 20, 30, 40, 50},
	})
)

// Runner executes GraphQL requests. *client.Client satisfies it.
type Runner interface {
	Query(ctx context.Context, endpoint string, req client.Request) (*client.Response, error)
}

// Config holds the pipeline settings.
type Config struct {
	// Pagination controls page size, page count and page retries
	Pagination pagination.Config
	// IndexNodeURL for indexing status; "" uses the hosted index node
	IndexNodeURL string
	// HostedRoot serves deployments by id; "" uses the hosted service
	HostedRoot string
}

// DefaultConfig returns the dashboard's settings: five pages of ten pools.
func DefaultConfig() Config {
	return Config{
		Pagination:   pagination.DefaultConfig(),
		IndexNodeURL: status.DefaultIndexNodeURL,
		HostedRoot:   dashboard.HostedRoot,
	}
}

// Overview is the result of one load.
type Overview struct {
	Endpoint      string                   `json:"endpoint"`
	SubgraphName  string                   `json:"subgraphName,omitempty"`
	Protocol      schema.Protocol          `json:"protocol"`
	ProtocolType  schema.ProtocolType      `json:"protocolType"`
	SchemaVersion string                   `json:"schemaVersion"`
	Deployment    string                   `json:"deployment,omitempty"`
	Pools         []record.Record          `json:"pools"`
	Pages         int                      `json:"pages"`
	Banner        *diagnostics.Banner      `json:"banner,omitempty"`
	OverlayErrors []string                 `json:"overlayErrors,omitempty"`
	Endpoints     dashboard.Endpoints      `json:"endpoints"`
	Tabs          map[dashboard.Tab]string `json:"tabs"`
	Status        *status.Report           `json:"status,omitempty"`
}

// Service loads pool overviews.
type Service struct {
	runner  Runner
	checker *status.Checker
	config  Config
	logger  zerolog.Logger
}

// NewService creates a service querying through runner.
func NewService(runner Runner, config Config) *Service {
	if config.Pagination.ShouldRetry == nil {
		config.Pagination.ShouldRetry = diagnostics.Retriable
	}
	return &Service{
		runner:  runner,
		checker: status.NewChecker(runner, config.IndexNodeURL),
		config:  config,
		logger:  logging.NewLogger(logging.ComponentOverview),
	}
}

// protocolResult is the outcome of protocol detection.
type protocolResult struct {
	data *schema.ProtocolData
	err  error
}

// Load runs the overview pipeline for view. Failures of the remote are
// reported through Overview.Banner; an error is returned only when ctx
// ends before the load completes.
func (s *Service) Load(ctx context.Context, view dashboard.View) (*Overview, error) {
	start := time.Now()
	defer func() {
		overviewLoadDuration.Observe(time.Since(start).Seconds())
	}()

	endpoints := view.Endpoints()
	ov := &Overview{
		Endpoint:     view.QueryURL,
		SubgraphName: view.SubgraphName,
		Pools:        []record.Record{},
	}

	// protocol detection and indexing status are independent
	var (
		proto  protocolResult
		report *status.Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		proto = s.detectProtocol(gctx, view.QueryURL)
		return nil
	})
	if view.SubgraphName != "" {
		g.Go(func() error {
			var err error
			report, err = s.checker.Check(gctx, view.SubgraphName)
			if err != nil {
				s.logger.Debug().Err(err).Str("subgraph", view.SubgraphName).Msg("Indexing status unavailable")
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		overviewLoadsTotal.WithLabelValues("cancelled").Inc()
		return nil, err
	}

	endpoints = endpoints.WithPending(report, s.config.HostedRoot)
	target := view.Target(endpoints)
	if target != view.QueryURL {
		// the pending deployment has its own protocol entity
		proto = s.detectProtocol(ctx, target)
	}
	ov.Endpoint = target
	ov.Endpoints = endpoints
	ov.Status = report
	ov.Tabs = view.TabLinks()

	protocol, found := proto.data.First()
	if !found {
		protocol = schema.FallbackProtocol(view.SubgraphName)
	}
	ov.Protocol = protocol
	ov.ProtocolType = protocol.ProtocolType()
	if proto.data != nil {
		ov.Deployment = proto.data.Meta.Deployment
	}

	ov.SchemaVersion = view.SchemaVersion
	if ov.SchemaVersion == "" {
		ov.SchemaVersion = protocol.SchemaVersion
	}

	var pageErr error
	if found {
		pageErr = s.loadPools(ctx, target, view.SkipAmt, ov)
	}

	if err := ctx.Err(); err != nil {
		overviewLoadsTotal.WithLabelValues("cancelled").Inc()
		return nil, err
	}

	ov.Banner = diagnostics.Evaluate(diagnostics.Inputs{
		Endpoint:      target,
		ProtocolErr:   proto.err,
		ProtocolFound: found,
		OverviewErr:   pageErr,
		IndexingFatal: report.FatalMessage(view.Version),
	})

	outcome := "ok"
	if ov.Banner != nil {
		outcome = "banner"
	}
	overviewLoadsTotal.WithLabelValues(outcome).Inc()
	overviewPools.Observe(float64(len(ov.Pools)))

	s.logger.Info().
		Str("endpoint", target).
		Str("protocol_type", string(ov.ProtocolType)).
		Int("pages", ov.Pages).
		Int("pools", len(ov.Pools)).
		Bool("banner", ov.Banner != nil).
		Dur("duration", time.Since(start)).
		Msg("Pool overview loaded")

	return ov, nil
}

func (s *Service) detectProtocol(ctx context.Context, endpoint string) protocolResult {
	resp, err := s.runner.Query(ctx, endpoint, client.Request{Query: schema.ProtocolQuery})
	if !resp.HasData() {
		return protocolResult{err: err}
	}

	data, parseErr := schema.ParseProtocols(resp.Data)
	if parseErr != nil {
		return protocolResult{err: errors.Join(err, parseErr)}
	}
	return protocolResult{data: data, err: err}
}

// loadPools pages through the pool collection, enriching every page as it
// arrives, and stores the merged, sorted result in ov.
func (s *Service) loadPools(ctx context.Context, endpoint string, skipAmt int, ov *Overview) error {
	var (
		query      string
		collection = ov.ProtocolType.Collection()
	)
	fetcher := pagination.FetchFunc(func(ctx context.Context, skip int) ([]record.Record, error) {
		resp, err := s.runner.Query(ctx, endpoint, client.Request{
			Query:     query,
			Variables: map[string]any{"skipAmt": skip},
		})
		if err != nil {
			return nil, err
		}
		return decodeCollection(resp.Data, collection)
	})

	paginator := pagination.NewPaginator(fetcher, s.config.Pagination)
	cfg := paginator.Config()

	query, err := schema.PoolOverviewQuery(ov.ProtocolType, ov.SchemaVersion, cfg.PageSize)
	if err != nil {
		return err
	}
	enricher := overlay.NewEnricher(s.runner, endpoint, ov.ProtocolType, ov.SchemaVersion, cfg.PageSize)

	var (
		enrichment errgroup.Group
		mu         sync.Mutex
		slots      = make([][]record.Record, cfg.MaxPages)
	)

	pages, pageErr := paginator.FetchPages(ctx, skipAmt, func(page pagination.Page) error {
		enrichment.Go(func() error {
			// each goroutine owns its slot
			out, err := enricher.Enrich(ctx, page.Records)
			slots[page.Number] = out
			if err != nil {
				mu.Lock()
				ov.OverlayErrors = append(ov.OverlayErrors, fmt.Sprintf("page %d: %v", page.Number, err))
				mu.Unlock()
			}
			return nil
		})
		return nil
	})
	_ = enrichment.Wait()

	enriched := make([][]record.Record, len(pages))
	for i := range pages {
		enriched[i] = slots[i]
	}

	ov.Pages = len(pages)
	ov.Pools = SortByLockedValue(Merge(enriched))

	return pageErr
}

// decodeCollection extracts the named pool collection from a data object.
func decodeCollection(data json.RawMessage, collection string) ([]record.Record, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	records, err := record.DecodeList(obj[collection])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return records, nil
}
