package geolocation

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/ports"
	"context"
	"fmt"
	"sync"
	"time"
)

const DefaultMaxFixAge = 5 * time.Second

// FeedSource is a GeoLocationSource backed by positions pushed from a device
// (for example over a websocket). Publish never blocks: every watcher has its
// own ordered queue drained by a dedicated goroutine.
type FeedSource struct {
	maxAge time.Duration

	mu      sync.Mutex
	last    *domain.PositionUpdate
	lastAt  time.Time
	waiters map[chan domain.PositionUpdate]struct{}
	subs    map[*feedSubscription]struct{}
	closed  bool
}

// NewFeedSource creates a source whose one-shot reads reuse a published
// update if it is younger than maxAge.
func NewFeedSource(maxAge time.Duration) *FeedSource {
	if maxAge <= 0 {
		maxAge = DefaultMaxFixAge
	}
	return &FeedSource{
		maxAge:  maxAge,
		waiters: make(map[chan domain.PositionUpdate]struct{}),
		subs:    make(map[*feedSubscription]struct{}),
	}
}

var _ ports.GeoLocationSource = (*FeedSource)(nil)

// Publish delivers a fix or a positioning failure to pending one-shot
// readers and to every active watch.
func (s *FeedSource) Publish(u domain.PositionUpdate) {
	if u.Err == nil && u.Fix.Timestamp.IsZero() {
		u.Fix.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.last = &u
	s.lastAt = time.Now()

	for w := range s.waiters {
		w <- u
		delete(s.waiters, w)
	}
	for sub := range s.subs {
		sub.enqueue(u)
	}
}

// CurrentPosition returns a recent published update or waits up to timeout
// for the next one. Failures are returned as *domain.PositionError.
func (s *FeedSource) CurrentPosition(ctx context.Context, timeout time.Duration) (domain.PositionFix, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.PositionFix{}, domain.NewPositionError(domain.PositionUnavailable, "position feed closed")
	}
	if s.last != nil && time.Since(s.lastAt) <= s.maxAge {
		u := *s.last
		s.mu.Unlock()
		return result(u)
	}

	w := make(chan domain.PositionUpdate, 1)
	s.waiters[w] = struct{}{}
	s.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case u := <-w:
		return result(u)
	case <-timeoutC:
		s.dropWaiter(w)
		return domain.PositionFix{}, domain.NewPositionError(domain.PositionTimeout, fmt.Sprintf("no position fix within %s", timeout))
	case <-ctx.Done():
		s.dropWaiter(w)
		return domain.PositionFix{}, ctx.Err()
	}
}

func (s *FeedSource) dropWaiter(w chan domain.PositionUpdate) {
	s.mu.Lock()
	delete(s.waiters, w)
	s.mu.Unlock()
}

func result(u domain.PositionUpdate) (domain.PositionFix, error) {
	if u.Err != nil {
		return domain.PositionFix{}, u.Err
	}
	return u.Fix, nil
}

// Watch opens a continuous stream. A published fix younger than
// opts.MaximumAge is replayed first.
func (s *FeedSource) Watch(ctx context.Context, opts ports.WatchOptions) (ports.PositionSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.NewPositionError(domain.PositionUnavailable, "position feed closed")
	}

	sub := newFeedSubscription(ctx, s, opts)
	if s.last != nil && s.last.Err == nil && opts.MaximumAge > 0 && time.Since(s.last.Fix.Timestamp) <= opts.MaximumAge {
		sub.enqueue(*s.last)
	}
	s.subs[sub] = struct{}{}

	go sub.run()

	return sub, nil
}

func (s *FeedSource) remove(sub *feedSubscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Close fails pending one-shot reads and ends every watch.
func (s *FeedSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	unavailable := domain.PositionUpdate{Err: domain.NewPositionError(domain.PositionUnavailable, "position feed closed")}
	for w := range s.waiters {
		w <- unavailable
		delete(s.waiters, w)
	}
	subs := make([]*feedSubscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// ActiveWatches reports the number of open subscriptions.
func (s *FeedSource) ActiveWatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
