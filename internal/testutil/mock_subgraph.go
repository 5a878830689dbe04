// Package testutil provides a mock subgraph and index node for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/schema"
)

// Request kinds counted by the mock.
const (
	KindProtocol = "protocol"
	KindPools    = "pools"
	KindTokens   = "tokens"
	KindSnapshot = "snapshots"
	KindStatus   = "status"
	KindUnknown  = "unknown"
)

// MockSubgraph serves GraphQL for one subgraph under /subgraphs/ and an
// index node under /index-node/graphql, dispatching on the query text.
type MockSubgraph struct {
	server *httptest.Server
	mu     sync.Mutex

	protocol      map[string]any
	protocolError string
	pools         []map[string]any
	pageSize      int
	pageFailures  map[int]int
	pageErrors    map[int]string
	failOverlays  bool
	delay         time.Duration

	fatalError     string
	pendingID      string
	pendingHealth  string

	requests map[string]int
	skips    []int
}

// NewMockSubgraph creates a mock serving an EXCHANGE protocol with no pools.
func NewMockSubgraph() *MockSubgraph {
	m := &MockSubgraph{
		protocol:     Protocol(schema.Exchange, "1.3.0"),
		pageSize:     10,
		pageFailures: make(map[int]int),
		pageErrors:   make(map[int]string),
		requests:     make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Protocol builds a protocol entity.
func Protocol(t schema.ProtocolType, schemaVersion string) map[string]any {
	return map[string]any{
		"id":                 "0xprotocol",
		"name":               "Mock " + strings.ToLower(string(t)),
		"type":               string(t),
		"network":            "MAINNET",
		"schemaVersion":      schemaVersion,
		"subgraphVersion":    "1.0.0",
		"methodologyVersion": "1.0.0",
	}
}

// GeneratePools returns n pools whose locked values are not in id order.
func GeneratePools(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"id":                  PoolID(i),
			"name":                fmt.Sprintf("Pool %d", i),
			"totalValueLockedUSD": fmt.Sprintf("%d.5", (i*7919)%1000),
		}
	}
	return out
}

// PoolID is the id GeneratePools assigns to pool i.
func PoolID(i int) string {
	return fmt.Sprintf("0x%04d", i)
}

// URL returns the server root.
func (m *MockSubgraph) URL() string {
	return m.server.URL
}

// BaseURL is the prefix for subgraph names.
func (m *MockSubgraph) BaseURL() string {
	return m.server.URL + "/subgraphs/name/"
}

// SubgraphURL returns the endpoint of a named subgraph.
func (m *MockSubgraph) SubgraphURL(name string) string {
	return m.BaseURL() + name
}

// IndexNodeURL returns the index node endpoint.
func (m *MockSubgraph) IndexNodeURL() string {
	return m.server.URL + "/index-node/graphql"
}

// Close shuts down the mock server.
func (m *MockSubgraph) Close() {
	m.server.Close()
}

// SetProtocol sets the protocol entity; nil serves an empty collection.
func (m *MockSubgraph) SetProtocol(p map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protocol = p
}

// SetProtocolError makes the protocol query fail with a GraphQL error.
func (m *MockSubgraph) SetProtocolError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protocolError = msg
}

// SetPools sets the pool collection.
func (m *MockSubgraph) SetPools(pools []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools = pools
}

// FailPage answers the page at skip with 502 for the next times requests.
func (m *MockSubgraph) FailPage(skip, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageFailures[skip] = times
}

// SetPageError answers the page at skip with a GraphQL error.
func (m *MockSubgraph) SetPageError(skip int, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageErrors[skip] = msg
}

// FailOverlays answers token and snapshot queries with 400.
func (m *MockSubgraph) FailOverlays(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOverlays = fail
}

// SetDelay delays every response.
func (m *MockSubgraph) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetIndexingStatus sets the current version's fatal error and an optional
// pending deployment.
func (m *MockSubgraph) SetIndexingStatus(fatalError, pendingID, pendingHealth string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fatalError = fatalError
	m.pendingID = pendingID
	m.pendingHealth = pendingHealth
}

// RequestCount returns the number of requests of kind.
func (m *MockSubgraph) RequestCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[kind]
}

// Skips returns the skip of every pool page request, in arrival order.
func (m *MockSubgraph) Skips() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.skips...)
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func kindOf(path, query string) string {
	switch {
	case strings.HasPrefix(path, "/index-node/"):
		return KindStatus
	case strings.Contains(query, "protocols {"):
		return KindProtocol
	case strings.HasPrefix(query, "query Tokens"):
		return KindTokens
	case strings.HasPrefix(query, "query Snapshots"):
		return KindSnapshot
	case strings.HasPrefix(query, "query Data"):
		return KindPools
	default:
		return KindUnknown
	}
}

func (m *MockSubgraph) handle(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []any{map[string]any{"message": err.Error()}}})
		return
	}

	kind := kindOf(r.URL.Path, req.Query)

	m.mu.Lock()
	m.requests[kind]++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	switch kind {
	case KindStatus:
		m.serveStatus(w)
	case KindProtocol:
		m.serveProtocol(w)
	case KindPools:
		m.servePools(w, req.Variables)
	case KindTokens:
		m.serveTokens(w, req.Variables)
	case KindSnapshot:
		m.serveSnapshots(w, req.Variables)
	default:
		writeJSON(w, http.StatusBadRequest, graphQLError("unknown query"))
	}
}

func (m *MockSubgraph) serveProtocol(w http.ResponseWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.protocolError != "" {
		writeJSON(w, http.StatusOK, graphQLError(m.protocolError))
		return
	}
	protocols := []any{}
	if m.protocol != nil {
		protocols = append(protocols, m.protocol)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"protocols": protocols,
			"_meta":     map[string]any{"deployment": "QmMockDeployment"},
		},
	})
}

func (m *MockSubgraph) protocolType() schema.ProtocolType {
	if m.protocol == nil {
		return schema.Unknown
	}
	t, _ := m.protocol["type"].(string)
	return schema.ParseType(t)
}

func (m *MockSubgraph) servePools(w http.ResponseWriter, vars map[string]any) {
	skipF, _ := vars["skipAmt"].(float64)
	skip := int(skipF)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.skips = append(m.skips, skip)

	if m.pageFailures[skip] > 0 {
		m.pageFailures[skip]--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if msg := m.pageErrors[skip]; msg != "" {
		writeJSON(w, http.StatusOK, graphQLError(msg))
		return
	}

	page := []map[string]any{}
	for i := skip; i < len(m.pools) && i < skip+m.pageSize; i++ {
		page = append(page, m.pools[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{m.protocolType().Collection(): page},
	})
}

func (m *MockSubgraph) known(id string) bool {
	for _, p := range m.pools {
		if p["id"] == id {
			return true
		}
	}
	return false
}

func (m *MockSubgraph) serveTokens(w http.ResponseWriter, vars map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOverlays {
		writeJSON(w, http.StatusBadRequest, graphQLError("overlay unavailable"))
		return
	}

	tokenKey := m.protocolType().TokenKey()
	data := map[string]any{}
	for n := 1; ; n++ {
		v, ok := vars[schema.IDVariable(n)]
		if !ok {
			break
		}
		id, _ := v.(string)
		if id == "" || !m.known(id) {
			data[schema.Alias(n)] = nil
			continue
		}
		token := map[string]any{"id": "token-" + id, "symbol": "TKN"}
		entry := map[string]any{"rewardTokens": []any{}}
		if tokenKey == "inputToken" {
			entry[tokenKey] = token
		} else {
			entry[tokenKey] = []any{token}
		}
		data[schema.Alias(n)] = entry
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (m *MockSubgraph) serveSnapshots(w http.ResponseWriter, vars map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOverlays {
		writeJSON(w, http.StatusBadRequest, graphQLError("overlay unavailable"))
		return
	}

	data := map[string]any{}
	for n := 1; ; n++ {
		v, ok := vars[schema.IDVariable(n)]
		if !ok {
			break
		}
		id, _ := v.(string)
		snapshots := []any{}
		if id != "" && m.known(id) {
			snapshots = append(snapshots, map[string]any{
				"dailyVolumeUSD":            "volume-" + id,
				"dailySupplySideRevenueUSD": "revenue-" + id,
				"timestamp":                 "1700000000",
			})
		}
		data[schema.Alias(n)] = snapshots
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (m *MockSubgraph) serveStatus(w http.ResponseWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := map[string]any{
		"subgraph":   "QmMockDeployment",
		"synced":     m.fatalError == "",
		"health":     "healthy",
		"fatalError": nil,
		"chains":     []any{},
	}
	if m.fatalError != "" {
		current["health"] = "failed"
		current["fatalError"] = map[string]any{"message": m.fatalError, "handler": nil, "block": map[string]any{"number": "100"}}
	}

	var pending any
	if m.pendingID != "" {
		pending = map[string]any{
			"subgraph":   m.pendingID,
			"synced":     false,
			"health":     m.pendingHealth,
			"fatalError": nil,
			"chains":     []any{},
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"indexingStatusForCurrentVersion": current,
			"indexingStatusForPendingVersion": pending,
		},
	})
}

func graphQLError(msg string) map[string]any {
	return map[string]any{
		"data":   nil,
		"errors": []any{map[string]any{"message": msg}},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
