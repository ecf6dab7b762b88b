package geolocation

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/ports"
	"context"
	"fmt"
	"sync"
	"time"
)

type feedSubscription struct {
	ctx    context.Context
	source *FeedSource
	opts   ports.WatchOptions

	mu     sync.Mutex
	queue  []domain.PositionUpdate
	signal chan struct{}

	out      chan domain.PositionUpdate
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
}

func newFeedSubscription(ctx context.Context, source *FeedSource, opts ports.WatchOptions) *feedSubscription {
	return &feedSubscription{
		ctx:      ctx,
		source:   source,
		opts:     opts,
		signal:   make(chan struct{}, 1),
		out:      make(chan domain.PositionUpdate),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *feedSubscription) Updates() <-chan domain.PositionUpdate { return s.out }

// Cancel stops delivery and waits for the delivery goroutine to exit, so no
// update is sent after it returns. Safe to call more than once and from the
// goroutine reading Updates.
func (s *feedSubscription) Cancel() {
	s.once.Do(func() { close(s.done) })
	<-s.finished
}

func (s *feedSubscription) enqueue(u domain.PositionUpdate) {
	if u.Err == nil && s.opts.MaxAccuracyMeters > 0 && u.Fix.AccuracyMeters > s.opts.MaxAccuracyMeters {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *feedSubscription) next() (domain.PositionUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return domain.PositionUpdate{}, false
	}
	u := s.queue[0]
	s.queue = s.queue[1:]
	return u, true
}

func (s *feedSubscription) run() {
	defer close(s.finished)
	defer close(s.out)
	defer s.source.remove(s)

	var timer *time.Timer
	var timeoutC <-chan time.Time
	if s.opts.Timeout > 0 {
		timer = time.NewTimer(s.opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		u, ok := s.next()
		if !ok {
			select {
			case <-s.signal:
				continue
			case <-timeoutC:
				u = domain.PositionUpdate{Err: domain.NewPositionError(
					domain.PositionTimeout,
					fmt.Sprintf("no position fix within %s", s.opts.Timeout),
				)}
				timer.Reset(s.opts.Timeout)
			case <-s.done:
				return
			case <-s.ctx.Done():
				return
			}
		}

		select {
		case s.out <- u:
			if u.Err == nil && timer != nil {
				timer.Reset(s.opts.Timeout)
			}
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}
