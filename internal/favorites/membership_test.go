package favorites

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-favorites/internal/store"
)

// countingBackend records how often each id is checked for existence.
type countingBackend struct {
	store.PersistentStore

	mu     sync.Mutex
	exists map[string]int
}

func (c *countingBackend) Exists(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	c.exists[id]++
	c.mu.Unlock()
	return c.PersistentStore.Exists(ctx, id)
}

func (c *countingBackend) existsCalls(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exists[id]
}

func TestMembership_InitialValueIsFalse(t *testing.T) {
	s, _ := newTestStore(t)

	feed, err := s.Membership().Watch(context.Background(), "X")
	require.NoError(t, err)
	defer feed.Close()

	assert.False(t, recv(t, feed))
	expectQuiet(t, feed, 50*time.Millisecond)
}

func TestMembership_InitialValueReflectsExistingRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, record("1", "A")))

	feed, err := s.IsFavorite(ctx, "1")
	require.NoError(t, err)
	defer feed.Close()

	assert.True(t, recv(t, feed))
}

func TestMembership_FollowsAddAndRemove(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	feed, err := s.IsFavorite(ctx, "1")
	require.NoError(t, err)
	defer feed.Close()
	require.False(t, recv(t, feed))

	require.NoError(t, s.Add(ctx, record("1", "A")))
	assert.True(t, recv(t, feed))

	// Replacing the record does not change membership.
	require.NoError(t, s.Add(ctx, record("1", "A2")))
	expectQuiet(t, feed, 50*time.Millisecond)

	require.NoError(t, s.Remove(ctx, "1"))
	assert.False(t, recv(t, feed))
}

func TestMembership_SubscriptionsAreIndependent(t *testing.T) {
	inner, err := store.NewInMemory()
	require.NoError(t, err)
	backend := &countingBackend{PersistentStore: inner, exists: make(map[string]int)}
	s := New(backend, slog.New(slog.DiscardHandler))
	t.Cleanup(func() {
		_ = s.Close()
		_ = inner.Close()
	})
	ctx := context.Background()

	feedA, err := s.IsFavorite(ctx, "A")
	require.NoError(t, err)
	defer feedA.Close()
	feedB, err := s.IsFavorite(ctx, "B")
	require.NoError(t, err)
	defer feedB.Close()

	require.False(t, recv(t, feedA))
	require.False(t, recv(t, feedB))
	require.Equal(t, 1, backend.existsCalls("B"))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(ctx, record("A", "only A")))
		require.NoError(t, s.Remove(ctx, "A"))
	}
	require.NoError(t, s.Add(ctx, record("A", "only A")))
	assert.True(t, waitFor(t, feedA, func(v bool) bool { return v }))

	expectQuiet(t, feedB, 100*time.Millisecond)
	assert.Equal(t, 1, backend.existsCalls("B"), "mutations of A must not reload B")

	require.NoError(t, s.Add(ctx, record("B", "now B")))
	assert.True(t, recv(t, feedB))
	assert.Equal(t, 2, backend.existsCalls("B"))
}

func TestMembership_ManySubscribersSameID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const n = 8
	feeds := make([]*Feed[bool], 0, n)
	for i := 0; i < n; i++ {
		f, err := s.IsFavorite(ctx, "shared")
		require.NoError(t, err)
		defer f.Close()
		require.False(t, recv(t, f))
		feeds = append(feeds, f)
	}
	assert.Equal(t, n, s.Subscribers())

	require.NoError(t, s.Add(ctx, record("shared", "S")))
	for _, f := range feeds {
		assert.True(t, recv(t, f))
	}
}

func TestMembership_ContextCancelReleases(t *testing.T) {
	s, _ := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	feed, err := s.IsFavorite(ctx, "1")
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool { return s.Subscribers() == 0 }, waitTimeout, 10*time.Millisecond)
	<-feed.Done()
	assert.NoError(t, feed.Err())
}
