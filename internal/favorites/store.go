// Package favorites owns the favorite-movie records and serves them as live
// feeds that re-emit after every committed mutation.
package favorites

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
	"github.com/Clark-Hu/movie-favorites/internal/store"
)

// ErrClosed is returned by every operation after Close and ends open feeds.
var ErrClosed = errors.New("favorites: store closed")

// Store is the single writer of favorites. Mutations are serialized and each
// one publishes a change event for the affected id once the backend call
// returns.
type Store struct {
	backend    store.PersistentStore
	logger     *slog.Logger
	broker     *broker
	membership *MembershipView

	// writeMu serializes Add, Remove and Toggle.
	writeMu sync.Mutex

	lifeMu sync.Mutex
	closed bool
	feeds  sync.WaitGroup
	root   context.Context
	cancel context.CancelFunc
}

// New wraps backend. The caller keeps ownership of backend and closes it
// after Close.
func New(backend store.PersistentStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	root, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend: backend,
		logger:  logger,
		broker:  newBroker(),
		root:    root,
		cancel:  cancel,
	}
	s.membership = &MembershipView{store: s}
	return s
}

// Add persists rec, replacing any record with the same id.
func (s *Store) Add(ctx context.Context, rec domain.FavoriteRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.backend.Upsert(ctx, rec)
	// Published on failure too: the write may have committed before the
	// error surfaced, and feeds drop values that did not change.
	s.broker.publish(rec.ID)
	if err != nil {
		return s.fault("add", err)
	}
	s.logger.Debug("favorites: added", "id", rec.ID, "title", rec.Title)
	return nil
}

// Remove deletes the record with id. A missing id is not an error and
// notifies nobody.
func (s *Store) Remove(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed, err := s.backend.Delete(ctx, id)
	if removed || err != nil {
		s.broker.publish(id)
	}
	if err != nil {
		return s.fault("remove", err)
	}
	if removed {
		s.logger.Debug("favorites: removed", "id", id)
	}
	return nil
}

// Toggle adds rec when it is absent and removes it otherwise. It returns the
// membership state after the change.
func (s *Store) Toggle(ctx context.Context, rec domain.FavoriteRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	if s.isClosed() {
		return false, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.backend.Exists(ctx, rec.ID)
	if err != nil {
		return false, s.fault("toggle", err)
	}

	if exists {
		_, err = s.backend.Delete(ctx, rec.ID)
	} else {
		err = s.backend.Upsert(ctx, rec)
	}
	s.broker.publish(rec.ID)
	if err != nil {
		return exists, s.fault("toggle", err)
	}
	s.logger.Debug("favorites: toggled", "id", rec.ID, "favorite", !exists)
	return !exists, nil
}

// Snapshot returns the current favorites in insertion order.
func (s *Store) Snapshot(ctx context.Context) ([]domain.FavoriteRecord, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	items, err := s.backend.List(ctx)
	if err != nil {
		return nil, s.fault("list", err)
	}
	return items, nil
}

// Contains reports whether id is currently a favorite.
func (s *Store) Contains(ctx context.Context, id string) (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}
	ok, err := s.backend.Exists(ctx, id)
	if err != nil {
		return false, s.fault("contains", err)
	}
	return ok, nil
}

// All returns a feed of the full favorites list.
func (s *Store) All(ctx context.Context) (*Feed[[]domain.FavoriteRecord], error) {
	return watch(ctx, s, matchAll, s.Snapshot, slices.Equal[[]domain.FavoriteRecord])
}

// IsFavorite returns a feed of the membership of id.
func (s *Store) IsFavorite(ctx context.Context, id string) (*Feed[bool], error) {
	return s.membership.Watch(ctx, id)
}

// Membership returns the per-id membership view of this store.
func (s *Store) Membership() *MembershipView { return s.membership }

// Subscribers reports how many feeds are currently registered.
func (s *Store) Subscribers() int { return s.broker.len() }

// Close ends every open feed and waits for them to release their
// subscriptions. The backend stays open.
func (s *Store) Close() error {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil
	}
	s.closed = true
	s.lifeMu.Unlock()

	// Wait out a writer that got past the closed check.
	s.writeMu.Lock()
	s.writeMu.Unlock()

	s.cancel()
	s.feeds.Wait()
	s.logger.Info("favorites: store closed")
	return nil
}

func (s *Store) isClosed() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.closed
}

// fault converts a backend error into a *domain.StorageFault. Context errors
// are the caller's own and pass through untouched.
func (s *Store) fault(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Error("favorites: storage failure", "op", op, "err", err)
	return &domain.StorageFault{Op: op, Err: err}
}

// watch subscribes before the first load so no commit between the two is
// lost, then hands the subscription to a feed goroutine.
func watch[T any](ctx context.Context, s *Store, match func(string) bool, load func(context.Context) (T, error), equal func(a, b T) bool) (*Feed[T], error) {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil, ErrClosed
	}
	s.feeds.Add(1)
	s.lifeMu.Unlock()

	subID, notify := s.broker.subscribe(match)
	first, err := load(ctx)
	if err != nil {
		s.broker.unsubscribe(subID)
		s.feeds.Done()
		return nil, err
	}

	feedCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.root, cancel)
	f := newFeed[T](cancel)

	go func() {
		defer s.feeds.Done()
		err := f.run(feedCtx, notify, first, load, equal)
		stop()
		cancel()
		s.broker.unsubscribe(subID)
		if err == nil && s.root.Err() != nil {
			err = ErrClosed
		}
		f.finish(err)
	}()
	return f, nil
}
