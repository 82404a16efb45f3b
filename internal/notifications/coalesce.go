package notifications

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Coalescer collapses concurrent identical reads of the same recipient into
// one round trip. Writes are never coalesced.
type Coalescer struct {
	group singleflight.Group
}

// Wrap returns store with its reads deduplicated under key.
func (c *Coalescer) Wrap(key string, store Store) Store {
	return &coalescedStore{group: &c.group, key: key, inner: store}
}

type coalescedStore struct {
	group *singleflight.Group
	key   string
	inner Store
}

func (s *coalescedStore) ListRecent(ctx context.Context, limit int) ([]Notification, error) {
	v, err := s.do(ctx, "list:"+s.key+":"+strconv.Itoa(limit), func(ctx context.Context) (any, error) {
		return s.inner.ListRecent(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	shared, _ := v.([]Notification)
	items := make([]Notification, len(shared))
	copy(items, shared)
	return items, nil
}

func (s *coalescedStore) UnreadCount(ctx context.Context) (int, error) {
	v, err := s.do(ctx, "count:"+s.key, func(ctx context.Context) (any, error) {
		return s.inner.UnreadCount(ctx)
	})
	if err != nil {
		return 0, err
	}
	count, _ := v.(int)
	return count, nil
}

func (s *coalescedStore) MarkRead(ctx context.Context, id int64) error {
	return s.inner.MarkRead(ctx, id)
}

func (s *coalescedStore) MarkAllRead(ctx context.Context) error {
	return s.inner.MarkAllRead(ctx)
}

// do runs fn once per key for every concurrent caller. The shared call is
// detached from the cancellation of whichever caller started it; each caller
// still gives up on its own context.
func (s *coalescedStore) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}
