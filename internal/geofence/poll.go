package geofence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"library-presence-backend/config"
)

// positionResponse is the JSON body served by a polled location endpoint.
type positionResponse struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// PollProvider is a Provider that asks an HTTP endpoint for the device
// position on a fixed interval.
type PollProvider struct {
	cfg    config.LocationPollConfig
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*pollSubscriber
}

// NewPollProvider creates a poller for cfg.URL.
func NewPollProvider(cfg config.LocationPollConfig, logger zerolog.Logger) *PollProvider {
	logger = logger.With().Str("component", "location_poll").Logger()

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("invalid proxy URL, polling without a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}

	return &PollProvider{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		logger: logger,
		now:    time.Now,
		subs:   make(map[uint64]*pollSubscriber),
	}
}

// Probe performs a single request.
func (p *PollProvider) Probe(ctx context.Context, opts Options) (Sample, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return p.fetch(ctx, opts)
}

// Subscribe starts a polling goroutine for this subscriber.
func (p *PollProvider) Subscribe(onSample func(Sample), onError func(error), opts Options) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &pollSubscriber{cancel: cancel, stopped: make(chan struct{})}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = sub
	p.mu.Unlock()

	go func() {
		defer close(sub.stopped)
		p.run(ctx, onSample, onError, opts)
	}()
	return subscriptionID(id), nil
}

// Unsubscribe cancels the poller and waits for it to exit.
func (p *PollProvider) Unsubscribe(s Subscription) {
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
	sub.cancel()
	<-sub.stopped
}

type pollSubscriber struct {
	cancel  context.CancelFunc
	stopped chan struct{}
}

func (p *PollProvider) run(ctx context.Context, onSample func(Sample), onError func(error), opts Options) {
	p.pollOnce(ctx, onSample, onError, opts)

	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.pollOnce(ctx, onSample, onError, opts)
			timer.Reset(p.cfg.Interval)
		}
	}
}

func (p *PollProvider) pollOnce(ctx context.Context, onSample func(Sample), onError func(error), opts Options) {
	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sample, err := p.fetch(reqCtx, opts)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}
	if onSample != nil {
		onSample(sample)
	}
}

func (p *PollProvider) fetch(ctx context.Context, opts Options) (Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range p.cfg.Headers {
		req.Header.Set(key, value)
	}
	if opts.HighAccuracy {
		q := req.URL.Query()
		q.Set("accuracy", "high")
		req.URL.RawQuery = q.Encode()
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: http request failed: %v", ErrPositionUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Sample{}, fmt.Errorf("%w: endpoint returned %d", ErrPermissionDenied, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Sample{}, fmt.Errorf("%w: endpoint returned %d", ErrPositionUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: failed to read response body: %v", ErrPositionUnavailable, err)
	}

	var pos positionResponse
	if err := json.Unmarshal(body, &pos); err != nil {
		return Sample{}, fmt.Errorf("%w: failed to unmarshal position: %v", ErrPositionUnavailable, err)
	}

	sample := Sample{
		Coordinate:     Coordinate{Lat: pos.Lat, Lon: pos.Lon},
		AccuracyMeters: pos.Accuracy,
		Timestamp:      pos.Timestamp,
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = p.now()
	}
	if !fresh(sample, p.now(), opts.MaxSampleAge) {
		return Sample{}, fmt.Errorf("%w: position is older than %s", ErrPositionUnavailable, opts.MaxSampleAge)
	}
	return sample, nil
}
