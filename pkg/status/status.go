// Package status queries a graph-node index-node endpoint for the indexing
// health of a subgraph's current and pending deployments.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/client"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultIndexNodeURL is the hosted service index-node endpoint.
const DefaultIndexNodeURL = "https://api.thegraph.com/index-node/graphql"

// Version selects a deployment of a named subgraph.
type Version string

const (
	Current Version = "current"
	Pending Version = "pending"
)

// ParseVersion maps anything other than "pending" to Current.
func ParseVersion(s string) Version {
	if strings.EqualFold(s, string(Pending)) {
		return Pending
	}
	return Current
}

const statusFields = `
    subgraph
    synced
    health
    fatalError {
      message
      handler
      block {
        number
      }
    }
    chains {
      network
      chainHeadBlock {
        number
      }
      latestBlock {
        number
      }
    }`

// Query fetches the indexing status of both versions of $subgraphName.
const Query = `query Status($subgraphName: String!) {
  indexingStatusForCurrentVersion(subgraphName: $subgraphName) {` + statusFields + `
  }
  indexingStatusForPendingVersion(subgraphName: $subgraphName) {` + statusFields + `
  }
}`

// FatalError describes the error that stopped indexing.
type FatalError struct {
	Message string `json:"message"`
	Handler string `json:"handler,omitempty"`
	Block   *struct {
		Number string `json:"number"`
	} `json:"block,omitempty"`
}

// Chain is the indexing progress on one network.
type Chain struct {
	Network        string `json:"network"`
	ChainHeadBlock *Block `json:"chainHeadBlock"`
	LatestBlock    *Block `json:"latestBlock"`
}

// Block is a block reference; graph-node encodes numbers as strings.
type Block struct {
	Number string `json:"number"`
}

// Indexing is the status of one deployment.
type Indexing struct {
	Subgraph   string      `json:"subgraph"`
	Synced     bool        `json:"synced"`
	Health     string      `json:"health"`
	FatalError *FatalError `json:"fatalError"`
	Chains     []Chain     `json:"chains"`
}

// Healthy reports whether the deployment exists and is healthy.
func (i *Indexing) Healthy() bool {
	return i != nil && i.Subgraph != "" && i.Health == "healthy"
}

// Report holds the status of both versions.
type Report struct {
	SubgraphName string    `json:"subgraphName"`
	Current      *Indexing `json:"indexingStatusForCurrentVersion"`
	Pending      *Indexing `json:"indexingStatusForPendingVersion"`
}

// For returns the status of v, nil when that version does not exist.
func (r *Report) For(v Version) *Indexing {
	if r == nil {
		return nil
	}
	if v == Pending {
		return r.Pending
	}
	return r.Current
}

// FatalMessage returns the fatal indexing error of v, "" if none.
func (r *Report) FatalMessage(v Version) string {
	st := r.For(v)
	if st == nil || st.FatalError == nil {
		return ""
	}
	return st.FatalError.Message
}

// PendingEndpoint returns the query URL of the pending deployment when it
// exists and is healthy. base is the hosted service root, e.g.
// "https://api.thegraph.com/".
func (r *Report) PendingEndpoint(base string) (string, bool) {
	p := r.For(Pending)
	if !p.Healthy() {
		return "", false
	}
	return strings.TrimSuffix(base, "/") + "/subgraphs/id/" + p.Subgraph, true
}

// Runner executes GraphQL requests.
type Runner interface {
	Query(ctx context.Context, endpoint string, req client.Request) (*client.Response, error)
}

// Checker queries the index node.
type Checker struct {
	runner   Runner
	endpoint string
	logger   zerolog.Logger
}

// NewChecker creates a checker; endpoint defaults to DefaultIndexNodeURL.
func NewChecker(runner Runner, endpoint string) *Checker {
	if endpoint == "" {
		endpoint = DefaultIndexNodeURL
	}
	return &Checker{
		runner:   runner,
		endpoint: endpoint,
		logger:   logging.NewLogger(logging.ComponentIndexNode),
	}
}

// ErrNoSubgraphName is returned when the status of an unnamed endpoint
// is requested; the index node only resolves names.
var ErrNoSubgraphName = errors.New("subgraph name required for indexing status")

// Check fetches the indexing status of subgraphName.
func (c *Checker) Check(ctx context.Context, subgraphName string) (*Report, error) {
	if subgraphName == "" {
		return nil, ErrNoSubgraphName
	}

	resp, err := c.runner.Query(ctx, c.endpoint, client.Request{
		Query:     Query,
		Variables: map[string]any{"subgraphName": subgraphName},
	})
	if err != nil && !resp.HasData() {
		return nil, fmt.Errorf("indexing status of %s: %w", subgraphName, err)
	}
	if err != nil {
		// an unknown pending version is reported as an error next to valid data
		c.logger.Debug().Err(err).Str("subgraph", subgraphName).Msg("Partial indexing status")
	}

	report := &Report{SubgraphName: subgraphName}
	if resp.HasData() {
		if err := json.Unmarshal(resp.Data, report); err != nil {
			return nil, fmt.Errorf("decode indexing status: %w", err)
		}
	}
	report.SubgraphName = subgraphName

	if msg := report.FatalMessage(Current); msg != "" {
		c.logger.Warn().
			Str("subgraph", subgraphName).
			Str("fatal_error", msg).
			Msg("Current deployment failed indexing")
	}

	return report, nil
}
