package coldvox

import (
	"context"
	"sync"
	"sync/atomic"
)

// Broadcaster fans AudioFrames out to multiple independent consumers over
// bounded per-subscriber queues. Publish never blocks: a subscriber that
// falls behind has its oldest unread frame evicted to make room, and the
// eviction count accumulates until the subscriber next reads, at which
// point it is reported as a lag signal so the subscriber can decide how to
// resynchronize (resume from the newest frame is the only sane choice,
// since the evicted frames are gone).
type Broadcaster struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscription]struct{}
}

// NewBroadcaster creates a broadcaster whose per-subscriber queue holds up
// to capacity frames before the oldest is evicted.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster{capacity: capacity, subs: make(map[*Subscription]struct{})}
}

// Subscription is one consumer's view of the broadcast: a bounded queue of
// frames plus a count of frames evicted since the last Recv.
type Subscription struct {
	ch     chan AudioFrame
	lagged atomic.Uint64
}

// Subscribe registers a new consumer. The returned Subscription must be
// released with Unsubscribe when the consumer is done.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan AudioFrame, b.capacity)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a consumer so Publish stops routing to it.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Publish delivers frame to every current subscriber. It never blocks: a
// full subscriber queue has its oldest entry dropped (and its lag counter
// incremented) to make room for the new one.
func (b *Broadcaster) Publish(frame AudioFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- frame:
		default:
			select {
			case <-sub.ch:
				sub.lagged.Add(1)
			default:
			}
			select {
			case sub.ch <- frame:
			default:
				// Lost a race with a concurrent drain elsewhere; count it
				// as lag rather than block the publisher.
				sub.lagged.Add(1)
			}
		}
	}
}

// Recv waits for the next frame, or returns ctx.Err() if ctx completes
// first. lagged reports how many frames were evicted before this one
// because the subscriber fell behind; the caller should treat a nonzero
// lagged as a resynchronization point (timestamps are still monotonic but
// not contiguous).
func (s *Subscription) Recv(ctx context.Context) (frame AudioFrame, lagged uint64, err error) {
	select {
	case f := <-s.ch:
		return f, s.lagged.Swap(0), nil
	case <-ctx.Done():
		return AudioFrame{}, 0, ctx.Err()
	}
}
