// Package dashboard resolves the dashboard's URL query parameters into the
// subgraph endpoint and view to load, and builds navigation links.
package dashboard

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/status"
)

const (
	// DefaultBaseURL prefixes subgraph names given without a full URL.
	DefaultBaseURL = "https://api.thegraph.com/subgraphs/name/"

	// HostedRoot is the hosted service root; deployments by id live under it.
	HostedRoot = "https://api.thegraph.com/"
)

// IsValidHTTPURL reports whether s is an absolute http(s) URL.
func IsValidHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// View is the state encoded in a dashboard URL.
type View struct {
	// Endpoint is the raw endpoint parameter: a subgraph name or a URL.
	Endpoint string `json:"endpoint"`
	// QueryURL is the resolved GraphQL endpoint.
	QueryURL string `json:"queryURL"`
	// SubgraphName is "org/name", "" when it cannot be derived.
	SubgraphName  string         `json:"subgraphName"`
	Tab           Tab            `json:"tab"`
	PoolID        string         `json:"poolId,omitempty"`
	ProtocolID    string         `json:"protocolId,omitempty"`
	SkipAmt       int            `json:"skipAmt"`
	Version       status.Version `json:"version"`
	ScrollTo      string         `json:"view,omitempty"`
	SchemaVersion string         `json:"schemaVersion,omitempty"`

	base   string
	params url.Values
}

// ParseView reads a view from query parameters. base prefixes endpoint
// names; "" means DefaultBaseURL.
func ParseView(q url.Values, base string) View {
	if base == "" {
		base = DefaultBaseURL
	}

	endpoint := q.Get("endpoint")
	v := View{
		Endpoint:      endpoint,
		QueryURL:      base + endpoint,
		SubgraphName:  endpoint,
		Tab:           ParseTab(q.Get("tab")),
		PoolID:        q.Get("poolId"),
		ProtocolID:    q.Get("protocolId"),
		SkipAmt:       parseSkip(q.Get("skipAmt")),
		Version:       status.ParseVersion(q.Get("version")),
		ScrollTo:      q.Get("view"),
		SchemaVersion: q.Get("schemaVersion"),
		base:          base,
		params:        cloneValues(q),
	}

	if endpoint != "" && IsValidHTTPURL(endpoint) {
		v.QueryURL = endpoint
		name := q.Get("name")
		switch {
		case name != "":
			v.SubgraphName = name
		case strings.Contains(endpoint, "name/"):
			v.SubgraphName = strings.SplitN(endpoint, "name/", 2)[1]
		default:
			v.SubgraphName = ""
		}
	}

	return v
}

func parseSkip(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, vs := range q {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Endpoints is the current/pending endpoint pair of a named subgraph.
type Endpoints struct {
	Current string `json:"current"`
	Pending string `json:"pending"`
}

// Endpoints places QueryURL under the viewed version. The current
// endpoint falls back to the named deployment when a name is known.
func (v View) Endpoints() Endpoints {
	var e Endpoints
	if v.Version == status.Pending {
		e.Pending = v.QueryURL
	} else {
		e.Current = v.QueryURL
	}
	if v.SubgraphName != "" && e.Current == "" {
		base := v.base
		if base == "" {
			base = DefaultBaseURL
		}
		e.Current = base + v.SubgraphName
	}
	return e
}

// WithPending returns e with the pending endpoint set from a healthy
// pending deployment served under root ("" means HostedRoot).
func (e Endpoints) WithPending(report *status.Report, root string) Endpoints {
	if root == "" {
		root = HostedRoot
	}
	if pending, ok := report.PendingEndpoint(root); ok {
		e.Pending = pending
	}
	return e
}

// Target returns the endpoint to query for v: the pending deployment when
// the pending version is viewed and known, else QueryURL.
func (v View) Target(e Endpoints) string {
	if v.Version == status.Pending && e.Pending != "" {
		return e.Pending
	}
	return v.QueryURL
}

// TabURL returns the link for switching to tab. The pool id is kept for
// pool-level tabs and the skip amount for the overview.
func (v View) TabURL(tab Tab) string {
	var b strings.Builder
	b.WriteString("?endpoint=")
	b.WriteString(v.Endpoint)
	b.WriteString("&tab=")
	b.WriteString(string(tab))
	if v.ProtocolID != "" {
		b.WriteString("&protocolId=")
		b.WriteString(url.QueryEscape(v.ProtocolID))
	}
	switch tab {
	case TabPoolOverview:
		if v.SkipAmt > 0 {
			b.WriteString("&skipAmt=")
			b.WriteString(strconv.Itoa(v.SkipAmt))
		}
	case TabPool, TabEvents, TabPositions:
		b.WriteString("&poolId=")
		b.WriteString(url.QueryEscape(v.PoolID))
	}
	if v.Version == status.Pending {
		b.WriteString("&version=pending")
	}
	return b.String()
}

// TabLinks returns the link of every tab.
func (v View) TabLinks() map[Tab]string {
	out := make(map[Tab]string, len(Tabs))
	for _, t := range Tabs {
		out[t] = v.TabURL(t)
	}
	return out
}

// VersionURL returns the link that switches the view to version ver
// served at endpoint. Pool and protocol selections are dropped since they
// may not exist in the other deployment.
func (v View) VersionURL(ver status.Version, endpoint string) string {
	p := cloneValues(v.params)
	p.Set("version", string(ver))
	p.Set("endpoint", endpoint)
	p.Set("name", v.SubgraphName)
	p.Del("view")
	p.Del("poolId")
	p.Del("protocolId")
	return "?" + strings.ReplaceAll(p.Encode(), "%2F", "/")
}
