package geofence

import (
	"context"
	"sync"
	"time"
)

// FeedProvider is a Provider fed from outside the process, for example by a
// phone posting its position to the API.
type FeedProvider struct {
	enabled bool
	now     func() time.Time

	mu      sync.Mutex
	latest  *Sample
	updated chan struct{}
	nextID  uint64
	subs    map[uint64]*feedSubscriber
}

// NewFeedProvider creates a feed. A disabled feed denies permission.
func NewFeedProvider(enabled bool) *FeedProvider {
	return &FeedProvider{
		enabled: enabled,
		now:     time.Now,
		updated: make(chan struct{}),
		subs:    make(map[uint64]*feedSubscriber),
	}
}

// Enabled reports whether the feed accepts samples.
func (p *FeedProvider) Enabled() bool {
	return p.enabled
}

// Push records a new sample and fans it out to subscribers.
func (p *FeedProvider) Push(s Sample) error {
	if !p.enabled {
		return ErrPermissionDenied
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = p.now()
	}

	p.mu.Lock()
	p.latest = &s
	close(p.updated)
	p.updated = make(chan struct{})
	subs := p.snapshotLocked()
	p.mu.Unlock()

	for _, sub := range subs {
		sub.offer(feedItem{sample: s})
	}
	return nil
}

// PushError forwards a device-side location error to subscribers.
func (p *FeedProvider) PushError(err error) {
	p.mu.Lock()
	subs := p.snapshotLocked()
	p.mu.Unlock()

	for _, sub := range subs {
		sub.offer(feedItem{err: err})
	}
}

// Probe returns the freshest sample, waiting up to opts.Timeout for one.
func (p *FeedProvider) Probe(ctx context.Context, opts Options) (Sample, error) {
	if !p.enabled {
		return Sample{}, ErrPermissionDenied
	}

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		p.mu.Lock()
		latest := p.latest
		updated := p.updated
		p.mu.Unlock()

		if latest != nil && fresh(*latest, p.now(), opts.MaxSampleAge) {
			return *latest, nil
		}

		select {
		case <-updated:
		case <-timeout:
			return Sample{}, ErrPositionUnavailable
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		}
	}
}

// Subscribe delivers every pushed sample to onSample on a dedicated goroutine.
func (p *FeedProvider) Subscribe(onSample func(Sample), onError func(error), opts Options) (Subscription, error) {
	if !p.enabled {
		return nil, ErrPermissionDenied
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	sub := &feedSubscriber{
		items:    make(chan feedItem, 16),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		onSample: onSample,
		onError:  onError,
		opts:     opts,
		now:      p.now,
	}
	p.subs[id] = sub
	p.mu.Unlock()

	go sub.run()
	return subscriptionID(id), nil
}

// Unsubscribe stops delivery and waits for any in-flight callback to finish.
func (p *FeedProvider) Unsubscribe(s Subscription) {
	if s == nil {
		return
	}
	p.mu.Lock()
	sub, ok := p.subs[s.ID()]
	delete(p.subs, s.ID())
	p.mu.Unlock()

	if !ok {
		return
	}
	close(sub.done)
	<-sub.stopped
}

func (p *FeedProvider) snapshotLocked() []*feedSubscriber {
	subs := make([]*feedSubscriber, 0, len(p.subs))
	for _, sub := range p.subs {
		subs = append(subs, sub)
	}
	return subs
}

func fresh(s Sample, now time.Time, maxAge time.Duration) bool {
	return maxAge <= 0 || now.Sub(s.Timestamp) <= maxAge
}

type feedItem struct {
	sample Sample
	err    error
}

type feedSubscriber struct {
	items    chan feedItem
	done     chan struct{}
	stopped  chan struct{}
	onSample func(Sample)
	onError  func(error)
	opts     Options
	now      func() time.Time
}

func (s *feedSubscriber) offer(item feedItem) {
	select {
	case s.items <- item:
	case <-s.done:
	default:
		// Subscriber is behind; drop the item rather than block the feed.
	}
}

func (s *feedSubscriber) run() {
	defer close(s.stopped)

	var timeout <-chan time.Time
	var timer *time.Timer
	if s.opts.Timeout > 0 {
		timer = time.NewTimer(s.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-s.done:
			return
		case <-timeout:
			s.report(ErrPositionUnavailable)
			timer.Reset(s.opts.Timeout)
		case item := <-s.items:
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.opts.Timeout)
			}
			select {
			case <-s.done:
				return
			default:
			}
			if item.err != nil {
				s.report(item.err)
				continue
			}
			if !fresh(item.sample, s.now(), s.opts.MaxSampleAge) {
				s.report(ErrPositionUnavailable)
				continue
			}
			if s.onSample != nil {
				s.onSample(item.sample)
			}
		}
	}
}

func (s *feedSubscriber) report(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
