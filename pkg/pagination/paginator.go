package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_pages_fetched_total",
		Help: "Total pages fetched by outcome (full, short, error)",
	}, []string{"outcome"})

	pageRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subgraph_page_retries_total",
		Help: "Total page fetch retries",
	})

	pageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "subgraph_page_fetch_duration_seconds",
		Help:    "Duration of a single page fetch including retries",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// Config holds paginator configuration
type Config struct {
	// PageSize is the number of records requested per page
	PageSize int
	// MaxPages caps how many pages one call fetches
	MaxPages int
	// MaxRetries per page; 0 disables retries, negative retries until
	// the context is done
	MaxRetries int
	// RetryDelay between attempts of the same page
	RetryDelay time.Duration
	// Timeout per page attempt
	Timeout time.Duration
	// ShouldRetry reports whether a page error is worth retrying.
	// nil retries every error.
	ShouldRetry func(error) bool
}

// DefaultConfig returns the dashboard's paging: five pages of ten records.
func DefaultConfig() Config {
	return Config{
		PageSize:   10,
		MaxPages:   5,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		Timeout:    15 * time.Second,
	}
}

// PageFetcher fetches the records of one page starting at skip.
type PageFetcher interface {
	FetchPage(ctx context.Context, skip int) ([]record.Record, error)
}

// FetchFunc adapts a function to PageFetcher.
type FetchFunc func(ctx context.Context, skip int) ([]record.Record, error)

// FetchPage calls f.
func (f FetchFunc) FetchPage(ctx context.Context, skip int) ([]record.Record, error) {
	return f(ctx, skip)
}

// Page is one fetched page.
type Page struct {
	// Number is the zero-based position of the page within the call
	Number  int
	Skip    int
	Records []record.Record
}

// Paginator fetches consecutive pages sequentially.
type Paginator struct {
	fetcher PageFetcher
	config  Config
}

// NewPaginator creates a new paginator
func NewPaginator(fetcher PageFetcher, config Config) *Paginator {
	if config.PageSize <= 0 {
		config.PageSize = 10
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Paginator{
		fetcher: fetcher,
		config:  config,
	}
}

// Config returns the effective configuration.
func (p *Paginator) Config() Config {
	return p.config
}

// FetchPages fetches pages starting at startSkip until a short page or
// MaxPages. onPage, when set, runs for each page before the next one is
// requested; an error from it stops pagination.
//
// On failure the pages fetched so far are returned along with the error.
func (p *Paginator) FetchPages(ctx context.Context, startSkip int, onPage func(Page) error) ([]Page, error) {
	start := time.Now()
	pages := make([]Page, 0, p.config.MaxPages)
	total := 0

	for n := 0; n < p.config.MaxPages; n++ {
		if err := ctx.Err(); err != nil {
			return pages, fmt.Errorf("pagination cancelled (partial data: %d pages): %w", len(pages), err)
		}

		skip := startSkip + n*p.config.PageSize
		records, err := p.fetchPage(ctx, skip)
		if err != nil {
			pagesFetchedTotal.WithLabelValues("error").Inc()
			log.Warn().
				Err(err).
				Int("page", n).
				Int("skip", skip).
				Int("fetched_pages", len(pages)).
				Msg("Page fetch failed - returning partial results")
			return pages, fmt.Errorf("page %d (skip %d, partial data: %d pages): %w", n, skip, len(pages), err)
		}

		page := Page{Number: n, Skip: skip, Records: records}
		pages = append(pages, page)
		total += len(records)

		if onPage != nil {
			if err := onPage(page); err != nil {
				return pages, fmt.Errorf("page %d handler: %w", n, err)
			}
		}

		if len(records) < p.config.PageSize {
			pagesFetchedTotal.WithLabelValues("short").Inc()
			break
		}
		pagesFetchedTotal.WithLabelValues("full").Inc()
	}

	log.Debug().
		Int("start_skip", startSkip).
		Int("pages", len(pages)).
		Int("records", total).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return pages, nil
}

// fetchPage fetches one page, retrying at the same skip.
func (p *Paginator) fetchPage(ctx context.Context, skip int) ([]record.Record, error) {
	start := time.Now()
	defer func() {
		pageFetchDuration.Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; ; attempt++ {
		pageCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		records, err := p.fetcher.FetchPage(pageCtx, skip)
		cancel()
		if err == nil {
			return records, nil
		}

		if ctx.Err() != nil {
			return nil, err
		}
		if p.config.ShouldRetry != nil && !p.config.ShouldRetry(err) {
			return nil, err
		}
		if p.config.MaxRetries >= 0 && attempt >= p.config.MaxRetries {
			if attempt == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("after %d retries: %w", attempt, err)
		}

		pageRetriesTotal.Inc()
		log.Debug().
			Err(err).
			Int("skip", skip).
			Int("attempt", attempt+1).
			Msg("Retrying page")

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(p.config.RetryDelay):
		}
	}
}
