// Package pagination fetches fixed-size pages of subgraph records one after
// another, offset by a skip amount.
//
// Subgraph collections are paged with first/skip arguments and report no
// total count, so the only signal that more data exists is a full page.
// A Paginator therefore requests page n+1 only after page n came back full,
// and stops on the first short page or after MaxPages pages.
//
// Example usage:
//
//	p := pagination.NewPaginator(fetcher, pagination.DefaultConfig())
//	pages, err := p.FetchPages(ctx, skipAmt, func(page pagination.Page) error {
//		go enrich(page) // start work on a page while the next one loads
//		return nil
//	})
//
// The paginator:
//   - Requests page n at startSkip + n*PageSize
//   - Hands every page to the callback as soon as it arrives
//   - Retries a failing page at the same skip (bounded by MaxRetries)
//   - Returns the pages fetched so far together with the error on failure
package pagination
