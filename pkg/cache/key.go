package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
)

// CacheKey represents a unique identifier for a cached subgraph response.
type CacheKey struct {
	// Endpoint is the subgraph URL the query was sent to
	Endpoint string

	// Query is the GraphQL document
	Query string

	// Variables are the GraphQL variables
	Variables map[string]any
}

// String generates a deterministic cache key string.
// Format: subgraph:<host><path>:<sha256(query, variables)>
//
// Example:
//
//	subgraph:api.thegraph.com/subgraphs/name/messari/aave-v2-ethereum:3f1a...
func (k CacheKey) String() string {
	parts := []string{"subgraph"}

	if endpoint := normalizeEndpoint(k.Endpoint); endpoint != "" {
		parts = append(parts, endpoint)
	}

	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(k.Query)))
	if len(k.Variables) > 0 {
		// encoding/json sorts map keys, which keeps the digest stable
		vars, err := json.Marshal(k.Variables)
		if err == nil {
			h.Write([]byte{0})
			h.Write(vars)
		}
	}
	parts = append(parts, hex.EncodeToString(h.Sum(nil))[:32])

	return strings.Join(parts, ":")
}

func normalizeEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return strings.Trim(endpoint, "/")
	}
	return strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}

// IndexKey is the set holding every cached key of endpoint.
func IndexKey(endpoint string) string {
	return "subgraph-index:" + normalizeEndpoint(endpoint)
}
