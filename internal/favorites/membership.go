package favorites

import "context"

// MembershipView derives "is id a favorite" feeds from a Store. Each feed
// only wakes for mutations of its own id and reads with an indexed existence
// check, so subscriptions for different ids never disturb each other.
type MembershipView struct {
	store *Store
}

// Watch returns a feed whose first value is the current membership of id
// (false for an id that was never added), followed by one value per change.
// The subscription is released when ctx ends or the feed is closed.
func (v *MembershipView) Watch(ctx context.Context, id string) (*Feed[bool], error) {
	load := func(ctx context.Context) (bool, error) {
		return v.store.Contains(ctx, id)
	}
	return watch(ctx, v.store, matchID(id), load, func(a, b bool) bool { return a == b })
}
