package overview

import (
	"sort"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/record"
)

// Merge concatenates pages in page order.
func Merge(pages [][]record.Record) []record.Record {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	out := make([]record.Record, 0, n)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out
}

// SortByLockedValue returns a copy of records ordered by
// totalValueLockedUSD, largest first. Equal values keep their input order.
func SortByLockedValue(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LockedValue() > out[j].LockedValue()
	})
	return out
}
