package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, open func(t *testing.T) PersistentStore) {
	t.Run("upsert then list", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		rec := sampleRecord("1", "A")
		require.NoError(t, st.Upsert(ctx, rec))

		items, err := st.List(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, rec, items[0])
	})

	t.Run("upsert replaces existing id", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		require.NoError(t, st.Upsert(ctx, sampleRecord("1", "A")))
		updated := sampleRecord("1", "A2")
		updated.Rating = 6.1
		updated.PosterURL = ""
		require.NoError(t, st.Upsert(ctx, updated))

		items, err := st.List(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, updated, items[0])
	})

	t.Run("list keeps insertion order and replace moves to end", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		for _, id := range []string{"b", "a", "c"} {
			require.NoError(t, st.Upsert(ctx, sampleRecord(id, "title "+id)))
		}
		require.NoError(t, st.Upsert(ctx, sampleRecord("b", "again")))

		items, err := st.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "b"}, ids(items))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		require.NoError(t, st.Upsert(ctx, sampleRecord("1", "A")))

		removed, err := st.Delete(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = st.Delete(ctx, "1")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = st.Delete(ctx, "1")
		require.NoError(t, err)
		assert.False(t, removed)

		items, err := st.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("exists and get", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		ok, err := st.Exists(ctx, "42")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = st.Get(ctx, "42")
		assert.ErrorIs(t, err, ErrNotFound)

		rec := sampleRecord("42", "X")
		require.NoError(t, st.Upsert(ctx, rec))

		ok, err = st.Exists(ctx, "42")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := st.Get(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("empty fields are stored as given", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		rec := domain.FavoriteRecord{ID: "bare"}
		require.NoError(t, st.Upsert(ctx, rec))

		got, err := st.Get(ctx, "bare")
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("empty id is rejected by the schema", func(t *testing.T) {
		st := open(t)
		assert.Error(t, st.Upsert(context.Background(), domain.FavoriteRecord{}))
	})

	t.Run("concurrent upserts", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		const workers = 10
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := st.Upsert(ctx, sampleRecord(fmt.Sprintf("m-%d", i), "concurrent")); err != nil {
					t.Errorf("upsert %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		items, err := st.List(ctx)
		require.NoError(t, err)
		assert.Len(t, items, workers)
	})

	t.Run("closed store", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.Close())
		require.NoError(t, st.Close())

		_, err := st.List(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, st.Upsert(context.Background(), sampleRecord("1", "A")), ErrClosed)
	})
}

func sampleRecord(id, title string) domain.FavoriteRecord {
	return domain.FavoriteRecord{
		ID:        id,
		Title:     title,
		Genre:     "Drama",
		Year:      "2001",
		Duration:  "1h",
		Rating:    7.5,
		PosterURL: "https://image.tmdb.org/t/p/w500/poster.jpg",
		Synopsis:  "synopsis",
	}
}

func ids(items []domain.FavoriteRecord) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
