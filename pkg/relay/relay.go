// Package relay hands frames from the capture loop to render loops without
// coupling their rates. A Relay keeps only the newest value: a slow consumer
// skips frames instead of building a backlog, and a fast consumer sees the
// last frame again.
package relay

import (
	"context"
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of relay counters.
type Stats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
}

// Relay is a single-slot latest-wins channel. The zero value is not usable;
// create with New.
type Relay[T any] struct {
	slot chan T

	// pubMu serializes drain+send so Publish never blocks.
	pubMu sync.Mutex

	lastMu sync.Mutex
	last   T

	// ready is closed by the first Publish.
	ready     chan struct{}
	readyOnce sync.Once

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an empty relay.
func New[T any]() *Relay[T] {
	return &Relay[T]{
		slot:  make(chan T, 1),
		ready: make(chan struct{}),
	}
}

// Publish stores v, replacing any value no consumer has taken yet.
func (r *Relay[T]) Publish(v T) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	select {
	case <-r.slot:
		r.dropped.Add(1)
	default:
	}
	r.slot <- v

	r.published.Add(1)
	r.readyOnce.Do(func() { close(r.ready) })
}

// Consume returns the newest value. It blocks until the first Publish or
// until ctx is done; afterwards it never blocks and returns the last value
// again when nothing new was published.
func (r *Relay[T]) Consume(ctx context.Context) (T, error) {
	select {
	case <-r.ready:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	r.lastMu.Lock()
	defer r.lastMu.Unlock()

	select {
	case v := <-r.slot:
		r.last = v
	default:
	}
	r.consumed.Add(1)
	return r.last, nil
}

// Stats returns the relay counters.
func (r *Relay[T]) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Consumed:  r.consumed.Load(),
		Dropped:   r.dropped.Load(),
	}
}
