// Package record defines the loosely-typed entity returned by subgraph queries.
package record

import (
	"encoding/json"
	"strconv"
)

// Field names every pool record is expected to carry.
const (
	FieldID          = "id"
	FieldLockedValue = "totalValueLockedUSD"
)

// Record is a single entity as returned by a subgraph. Its shape is
// determined by the remote schema at query time.
type Record map[string]any

// ID returns the identifier field, or "" when it is absent.
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	id, _ := r[FieldID].(string)
	return id
}

// LockedValue returns totalValueLockedUSD as a float.
// Subgraphs encode BigDecimal values as strings; anything unparsable is 0.
func (r Record) LockedValue() float64 {
	if r == nil {
		return 0
	}
	return Number(r[FieldLockedValue])
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Number converts a decoded JSON value to float64.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// DecodeList decodes a JSON array of objects into records.
func DecodeList(raw json.RawMessage) ([]Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
