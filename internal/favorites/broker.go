package favorites

import "sync"

// subscriber is woken through a one-slot channel. Pending wake-ups coalesce,
// so a publisher never blocks on a slow reader.
type subscriber struct {
	match  func(id string) bool
	notify chan struct{}
}

// broker fans change events out to subscribers whose filter accepts the
// changed id.
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

func newBroker() *broker {
	return &broker{subs: make(map[int]*subscriber)}
}

func (b *broker) subscribe(match func(id string) bool) (int, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{match: match, notify: make(chan struct{}, 1)}
	b.subs[b.nextID] = sub
	return b.nextID, sub.notify
}

func (b *broker) unsubscribe(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *broker) publish(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.match != nil && !sub.match(id) {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

func (b *broker) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func matchAll(string) bool { return true }

func matchID(want string) func(string) bool {
	return func(id string) bool { return id == want }
}
