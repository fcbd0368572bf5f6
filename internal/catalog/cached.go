package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

type cachedPage struct {
	movies    []domain.Movie
	expiresAt time.Time
}

// CachedClient wraps a Client with an LRU of recently fetched pages and
// collapses concurrent fetches of the same page into one upstream call.
// Failures are never cached, so an expired page is refetched rather than
// served after an upstream fault.
type CachedClient struct {
	next   Client
	pages  *lru.Cache[int, cachedPage]
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedClient wraps next. A size or ttl of zero disables caching and
// keeps only the request collapsing.
func NewCachedClient(next Client, size int, ttl time.Duration, logger *slog.Logger) (*CachedClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CachedClient{next: next, ttl: ttl, logger: logger, now: time.Now}
	if size > 0 && ttl > 0 {
		pages, err := lru.New[int, cachedPage](size)
		if err != nil {
			return nil, fmt.Errorf("create catalog cache: %w", err)
		}
		c.pages = pages
	}
	return c, nil
}

// FetchPopular serves a page from the cache or the wrapped client.
func (c *CachedClient) FetchPopular(ctx context.Context, page int) ([]domain.Movie, error) {
	if page < 1 {
		page = 1
	}
	if movies, ok := c.lookup(page); ok {
		return movies, nil
	}

	// The shared call outlives any single waiter; each waiter still honours
	// its own context.
	ch := c.group.DoChan(strconv.Itoa(page), func() (any, error) {
		movies, err := c.next.FetchPopular(context.WithoutCancel(ctx), page)
		if err != nil {
			return nil, err
		}
		c.store(page, movies)
		return movies, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]domain.Movie)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Purge drops every cached page.
func (c *CachedClient) Purge() {
	if c.pages != nil {
		c.pages.Purge()
	}
}

func (c *CachedClient) lookup(page int) ([]domain.Movie, bool) {
	if c.pages == nil {
		return nil, false
	}
	item, ok := c.pages.Get(page)
	if !ok {
		return nil, false
	}
	if c.now().After(item.expiresAt) {
		c.pages.Remove(page)
		return nil, false
	}
	c.logger.Debug("catalog: cache hit", "page", page)
	return slices.Clone(item.movies), true
}

func (c *CachedClient) store(page int, movies []domain.Movie) {
	if c.pages == nil {
		return
	}
	c.pages.Add(page, cachedPage{movies: slices.Clone(movies), expiresAt: c.now().Add(c.ttl)})
}
