package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/client"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/record"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var overlayQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "subgraph_overlay_queries_total",
	Help: "Total overlay queries by kind (token, snapshot) and outcome",
}, []string{"kind", "outcome"})

// QueryRunner executes GraphQL requests. *client.Client satisfies it.
type QueryRunner interface {
	Query(ctx context.Context, endpoint string, req client.Request) (*client.Response, error)
}

// Enricher runs the overlay queries for pages of one endpoint.
type Enricher struct {
	runner        QueryRunner
	endpoint      string
	protocolType  schema.ProtocolType
	schemaVersion string
	size          int
	logger        zerolog.Logger
}

// NewEnricher creates an enricher for pages of up to size records.
func NewEnricher(runner QueryRunner, endpoint string, t schema.ProtocolType, schemaVersion string, size int) *Enricher {
	return &Enricher{
		runner:        runner,
		endpoint:      endpoint,
		protocolType:  t,
		schemaVersion: schemaVersion,
		size:          size,
		logger:        logging.NewLogger(logging.ComponentOverlay),
	}
}

// Enrich attaches token fields and, for exchanges, daily volume snapshots
// to page. The token and snapshot queries run concurrently; snapshots are
// applied first, then tokens.
//
// Overlay failures are not fatal: the records are always returned, with
// whatever overlays succeeded, alongside the joined errors.
func (e *Enricher) Enrich(ctx context.Context, page []record.Record) ([]record.Record, error) {
	if len(page) == 0 {
		return page, nil
	}

	vars := IDVariables(page, e.size)

	var (
		g                 errgroup.Group
		tokens, snapshots Overlay
		tokenErr, snapErr error
	)

	g.Go(func() error {
		tokens, tokenErr = e.tokens(ctx, vars)
		return nil
	})
	if e.protocolType.HasVolumeSnapshots() {
		g.Go(func() error {
			snapshots, snapErr = e.snapshots(ctx, vars)
			return nil
		})
	}
	_ = g.Wait()

	out := page
	if snapshots != nil {
		out = Apply(out, snapshots)
	}
	if tokens != nil {
		out = Apply(out, tokens)
	}

	err := errors.Join(tokenErr, snapErr)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("endpoint", e.endpoint).
			Int("records", len(page)).
			Msg("Overlay incomplete - returning base records")
	}
	return out, err
}

func (e *Enricher) tokens(ctx context.Context, vars map[string]any) (Overlay, error) {
	query, err := schema.TokenOverlayQuery(e.protocolType, e.size)
	if err != nil {
		overlayQueriesTotal.WithLabelValues("token", "skipped").Inc()
		return nil, err
	}

	data, err := e.run(ctx, "token", query, vars)
	if data == nil {
		return nil, err
	}
	ov, parseErr := TokenOverlay(data, e.protocolType.TokenKey())
	if parseErr != nil {
		return nil, errors.Join(err, parseErr)
	}
	return ov, err
}

func (e *Enricher) snapshots(ctx context.Context, vars map[string]any) (Overlay, error) {
	data, err := e.run(ctx, "snapshot", schema.SnapshotVolumeQuery(e.schemaVersion, e.size), vars)
	if data == nil {
		return nil, err
	}
	ov, parseErr := SnapshotOverlay(data)
	if parseErr != nil {
		return nil, errors.Join(err, parseErr)
	}
	return ov, err
}

// run returns the data object of the response, which may be partial when
// err is a *client.QueryError.
func (e *Enricher) run(ctx context.Context, kind, query string, vars map[string]any) (json.RawMessage, error) {
	resp, err := e.runner.Query(ctx, e.endpoint, client.Request{Query: query, Variables: vars})
	if err != nil {
		overlayQueriesTotal.WithLabelValues(kind, "error").Inc()
		err = fmt.Errorf("%s overlay: %w", kind, err)
		var qe *client.QueryError
		if errors.As(err, &qe) && resp.HasData() {
			return resp.Data, err
		}
		return nil, err
	}
	overlayQueriesTotal.WithLabelValues(kind, "ok").Inc()
	if !resp.HasData() {
		return nil, nil
	}
	return resp.Data, nil
}
