package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

type stubClient struct {
	calls atomic.Int32
	gate  chan struct{}

	mu  sync.Mutex
	err error
}

func (s *stubClient) FetchPopular(ctx context.Context, page int) ([]domain.Movie, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []domain.Movie{{ID: strconv.Itoa(page), Title: "page " + strconv.Itoa(page)}}, nil
}

func (s *stubClient) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func newCached(t *testing.T, next Client, size int, ttl time.Duration) *CachedClient {
	t.Helper()
	c, err := NewCachedClient(next, size, ttl, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewCachedClient: %v", err)
	}
	return c
}

func TestCachedClient_ServesFromCache(t *testing.T) {
	stub := &stubClient{}
	c := newCached(t, stub, 4, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		movies, err := c.FetchPopular(ctx, 1)
		if err != nil {
			t.Fatalf("FetchPopular: %v", err)
		}
		if len(movies) != 1 || movies[0].ID != "1" {
			t.Fatalf("unexpected movies: %+v", movies)
		}
		movies[0].Title = "mutated by caller"
	}
	if got := stub.calls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}

	movies, _ := c.FetchPopular(ctx, 1)
	if movies[0].Title != "page 1" {
		t.Fatalf("cached page was mutated: %+v", movies[0])
	}

	if _, err := c.FetchPopular(ctx, 2); err != nil {
		t.Fatalf("FetchPopular page 2: %v", err)
	}
	if got := stub.calls.Load(); got != 2 {
		t.Fatalf("upstream calls = %d, want 2", got)
	}
}

func TestCachedClient_ExpiresEntries(t *testing.T) {
	stub := &stubClient{}
	c := newCached(t, stub, 4, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = c.FetchPopular(ctx, 1)
	now = now.Add(30 * time.Second)
	_, _ = c.FetchPopular(ctx, 1)
	if got := stub.calls.Load(); got != 1 {
		t.Fatalf("upstream calls before expiry = %d, want 1", got)
	}

	now = now.Add(31 * time.Second)
	_, _ = c.FetchPopular(ctx, 1)
	if got := stub.calls.Load(); got != 2 {
		t.Fatalf("upstream calls after expiry = %d, want 2", got)
	}
}

func TestCachedClient_DoesNotCacheFaultsOrServeStale(t *testing.T) {
	stub := &stubClient{}
	c := newCached(t, stub, 4, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := c.FetchPopular(ctx, 1); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	fault := &domain.UpstreamFault{Op: "fetch popular", StatusCode: 503, Err: errors.New("down")}
	stub.setErr(fault)
	now = now.Add(2 * time.Minute)

	for i := 0; i < 2; i++ {
		_, err := c.FetchPopular(ctx, 1)
		var got *domain.UpstreamFault
		if !errors.As(err, &got) {
			t.Fatalf("attempt %d: error = %v, want the upstream fault", i, err)
		}
	}
	if got := stub.calls.Load(); got != 3 {
		t.Fatalf("upstream calls = %d, want 3", got)
	}

	stub.setErr(nil)
	if _, err := c.FetchPopular(ctx, 1); err != nil {
		t.Fatalf("recovery: %v", err)
	}
}

func TestCachedClient_CollapsesConcurrentFetches(t *testing.T) {
	stub := &stubClient{gate: make(chan struct{})}
	c := newCached(t, stub, 0, 0)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FetchPopular(context.Background(), 3)
			errs <- err
		}()
	}

	// Give every caller time to join the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(stub.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("FetchPopular: %v", err)
		}
	}
	if got := stub.calls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestCachedClient_WaiterHonoursOwnContext(t *testing.T) {
	stub := &stubClient{gate: make(chan struct{})}
	defer close(stub.gate)
	c := newCached(t, stub, 4, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchPopular(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}
