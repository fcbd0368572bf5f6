package favorites

import (
	"context"
	"sync"
)

// Feed is a live sequence of values. The first value is the state at
// subscription time; later values follow committed mutations in commit order.
// Consecutive equal values are dropped and a slow reader only ever misses
// superseded states, never the latest one.
//
// The channel returned by C is closed when the feed ends: the caller's
// context was cancelled, Close was called, the store was closed, or a reload
// failed. Err tells these apart.
type Feed[T any] struct {
	c      chan T
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newFeed[T any](cancel context.CancelFunc) *Feed[T] {
	return &Feed[T]{
		c:      make(chan T),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// C returns the channel values are delivered on.
func (f *Feed[T]) C() <-chan T { return f.c }

// Close stops the feed and waits until its goroutine has released the
// subscription. It is safe to call more than once.
func (f *Feed[T]) Close() {
	f.cancel()
	<-f.done
}

// Done is closed once the feed has fully stopped.
func (f *Feed[T]) Done() <-chan struct{} { return f.done }

// Err reports why the feed ended: nil after cancellation by the caller,
// ErrClosed when the store shut down, or the *domain.StorageFault that a
// reload returned. It is nil while the feed is running.
func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Feed[T]) finish(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.c)
	close(f.done)
}

// run delivers cur, then reloads on every notification until ctx ends.
// Sending and waiting share one select so a reload can replace a value the
// reader has not taken yet.
func (f *Feed[T]) run(ctx context.Context, notify <-chan struct{}, cur T, load func(context.Context) (T, error), equal func(a, b T) bool) error {
	var (
		sent    T
		hasSent bool
		pending = true
	)
	for {
		var out chan<- T
		if pending {
			out = f.c
		}

		select {
		case out <- cur:
			sent, hasSent, pending = cur, true, false
		case <-notify:
			next, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			cur = next
			pending = !hasSent || !equal(cur, sent)
		case <-ctx.Done():
			return nil
		}
	}
}
