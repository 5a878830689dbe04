// Package overlay attaches supplementary per-pool fields to a page of base
// records. Supplementary queries address pools by their position in the page
// (pool1 … poolN), and their results are spliced back by that same position.
package overlay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/record"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/schema"
)

// Fields are the overlay values for one record.
type Fields map[string]any

// Overlay maps a zero-based page position to the fields to merge there.
type Overlay map[int]Fields

// IDVariables returns pool1Id … pool{size}Id for the ids of page. Missing
// slots get "", which the endpoint resolves to null.
func IDVariables(page []record.Record, size int) map[string]any {
	vars := make(map[string]any, size)
	for i := 0; i < size; i++ {
		id := ""
		if i < len(page) {
			id = page[i].ID()
		}
		vars[schema.IDVariable(i+1)] = id
	}
	return vars
}

// aliasIndex turns "pool7" into 6.
func aliasIndex(alias string) (int, bool) {
	rest, ok := strings.CutPrefix(alias, "pool")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// TokenOverlay parses a token overlay response. tokenKey and rewardTokens
// are copied for each non-null alias.
func TokenOverlay(data json.RawMessage, tokenKey string) (Overlay, error) {
	var aliased map[string]map[string]any
	if err := json.Unmarshal(data, &aliased); err != nil {
		return nil, fmt.Errorf("decode token overlay: %w", err)
	}

	ov := make(Overlay, len(aliased))
	for alias, pool := range aliased {
		idx, ok := aliasIndex(alias)
		if !ok || pool == nil {
			continue
		}
		ov[idx] = Fields{
			tokenKey:       pool[tokenKey],
			"rewardTokens": pool["rewardTokens"],
		}
	}
	return ov, nil
}

// SnapshotOverlay parses a snapshot volume response. The last snapshot of
// each alias supplies dailyVolumeUSD and dailySupplySideRevenueUSD.
func SnapshotOverlay(data json.RawMessage) (Overlay, error) {
	var aliased map[string][]map[string]any
	if err := json.Unmarshal(data, &aliased); err != nil {
		return nil, fmt.Errorf("decode snapshot overlay: %w", err)
	}

	ov := make(Overlay, len(aliased))
	for alias, snapshots := range aliased {
		idx, ok := aliasIndex(alias)
		if !ok {
			continue
		}
		f := Fields{"dailyVolumeUSD": nil, "dailySupplySideRevenueUSD": nil}
		if n := len(snapshots); n > 0 {
			last := snapshots[n-1]
			f["dailyVolumeUSD"] = last["dailyVolumeUSD"]
			f["dailySupplySideRevenueUSD"] = last["dailySupplySideRevenueUSD"]
		}
		ov[idx] = f
	}
	return ov, nil
}

// Apply merges ov into page by position. Records that receive fields are
// cloned so page is left untouched; the result always has len(page) records
// and positions outside the page are ignored.
func Apply(page []record.Record, ov Overlay) []record.Record {
	out := make([]record.Record, len(page))
	for i, r := range page {
		fields, ok := ov[i]
		if !ok {
			out[i] = r
			continue
		}
		c := r.Clone()
		for k, v := range fields {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
