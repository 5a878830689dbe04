package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher serves a fixed collection of total records and can fail
// selected skips a number of times.
type mockFetcher struct {
	mu       sync.Mutex
	total    int
	failures map[int]int
	err      error
	calls    []int
}

func (m *mockFetcher) FetchPage(ctx context.Context, skip int) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, skip)
	if m.failures[skip] > 0 {
		m.failures[skip]--
		return nil, m.err
	}

	var out []record.Record
	for i := skip; i < m.total && i < skip+10; i++ {
		out = append(out, record.Record{"id": fmt.Sprintf("pool-%d", i)})
	}
	return out, nil
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestNewPaginator_Defaults(t *testing.T) {
	p := NewPaginator(&mockFetcher{}, Config{})
	assert.Equal(t, 10, p.Config().PageSize)
	assert.Equal(t, 5, p.Config().MaxPages)
	assert.Equal(t, 15*time.Second, p.Config().Timeout)
}

func TestFetchPages_StopRule(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		startSkip int
		wantSkips []int
		wantCount int
	}{
		{"empty collection", 0, 0, []int{0}, 0},
		{"single short page", 7, 0, []int{0}, 7},
		{"exactly one full page", 10, 0, []int{0, 10}, 10},
		{"two and a half pages", 25, 0, []int{0, 10, 20}, 25},
		{"more than max pages", 200, 0, []int{0, 10, 20, 30, 40}, 50},
		{"offset start", 200, 30, []int{30, 40, 50, 60, 70}, 50},
		{"offset near end", 35, 20, []int{20, 30}, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &mockFetcher{total: tt.total}
			pages, err := NewPaginator(f, fastConfig()).FetchPages(context.Background(), tt.startSkip, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSkips, f.calls)

			count := 0
			for i, page := range pages {
				assert.Equal(t, i, page.Number)
				assert.Equal(t, tt.wantSkips[i], page.Skip)
				count += len(page.Records)
			}
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestFetchPages_PagesAreFullUntilLast(t *testing.T) {
	f := &mockFetcher{total: 43}
	pages, err := NewPaginator(f, fastConfig()).FetchPages(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, pages, 5)

	for _, page := range pages[:len(pages)-1] {
		assert.Len(t, page.Records, 10)
	}
	assert.Len(t, pages[4].Records, 3)
	assert.Equal(t, "pool-42", pages[4].Records[2].ID())
}

func TestFetchPages_OnPageSeesEachPageInOrder(t *testing.T) {
	f := &mockFetcher{total: 25}
	var seen []int

	_, err := NewPaginator(f, fastConfig()).FetchPages(context.Background(), 0, func(p Page) error {
		seen = append(seen, p.Skip)
		// the next page must not have been requested yet
		assert.Equal(t, p.Skip, f.calls[len(f.calls)-1])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20}, seen)
}

func TestFetchPages_OnPageError(t *testing.T) {
	f := &mockFetcher{total: 100}
	stop := errors.New("stop")

	pages, err := NewPaginator(f, fastConfig()).FetchPages(context.Background(), 0, func(p Page) error {
		if p.Number == 1 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Len(t, pages, 2)
	assert.Equal(t, []int{0, 10}, f.calls)
}

func TestFetchPages_RetriesSameSkip(t *testing.T) {
	f := &mockFetcher{
		total:    15,
		failures: map[int]int{10: 2},
		err:      errors.New("502 bad gateway"),
	}

	pages, err := NewPaginator(f, fastConfig()).FetchPages(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 10, 10}, f.calls)
	require.Len(t, pages, 2)
	assert.Len(t, pages[1].Records, 5)
}

func TestFetchPages_PartialResultsOnPersistentFailure(t *testing.T) {
	boom := errors.New("502 bad gateway")
	f := &mockFetcher{
		total:    100,
		failures: map[int]int{20: 100},
		err:      boom,
	}

	pages, err := NewPaginator(f, fastConfig()).FetchPages(context.Background(), 0, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "partial data: 2 pages")
	assert.Len(t, pages, 2)
	// initial attempt plus three retries
	assert.Equal(t, []int{0, 10, 20, 20, 20, 20}, f.calls)
}

func TestFetchPages_NoRetryWhenDisabled(t *testing.T) {
	boom := errors.New("timeout")
	f := &mockFetcher{total: 100, failures: map[int]int{0: 1}, err: boom}

	cfg := fastConfig()
	cfg.MaxRetries = 0
	pages, err := NewPaginator(f, cfg).FetchPages(context.Background(), 0, nil)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, pages)
	assert.Equal(t, []int{0}, f.calls)
}

func TestFetchPages_ShouldRetryFilter(t *testing.T) {
	mismatch := errors.New("Type `Pool` has no field `dailyVolumeUSD`")
	f := &mockFetcher{total: 100, failures: map[int]int{0: 5}, err: mismatch}

	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, mismatch) }

	_, err := NewPaginator(f, cfg).FetchPages(context.Background(), 0, nil)
	require.ErrorIs(t, err, mismatch)
	assert.Equal(t, []int{0}, f.calls)
}

func TestFetchPages_UnboundedRetriesStopOnCancel(t *testing.T) {
	f := &mockFetcher{total: 100, failures: map[int]int{0: 1 << 30}, err: errors.New("down")}

	cfg := fastConfig()
	cfg.MaxRetries = -1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	pages, err := NewPaginator(f, cfg).FetchPages(ctx, 0, nil)
	require.Error(t, err)
	assert.Empty(t, pages)
	assert.Greater(t, len(f.calls), 3)
}

func TestFetchPages_CancelledContext(t *testing.T) {
	f := &mockFetcher{total: 100}
	ctx, cancel := context.WithCancel(context.Background())

	pages, err := NewPaginator(f, fastConfig()).FetchPages(ctx, 0, func(p Page) error {
		if p.Number == 0 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, pages, 1)
	assert.Equal(t, []int{0}, f.calls)
}

func TestFetchFunc(t *testing.T) {
	var gotSkip int
	fn := FetchFunc(func(ctx context.Context, skip int) ([]record.Record, error) {
		gotSkip = skip
		return nil, nil
	})

	_, err := NewPaginator(fn, fastConfig()).FetchPages(context.Background(), 40, nil)
	require.NoError(t, err)
	assert.Equal(t, 40, gotSkip)
}
