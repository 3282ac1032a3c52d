package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gamifyd/core"
	"gamifyd/engine"
)

// Sink posts committed domain events to configured HTTP endpoints.
// Delivery is at-most-once per endpoint with a short retry window; consumers
// that need stronger guarantees should read the event stream instead.
type Sink struct {
	client    *http.Client
	endpoints []string
	types     map[core.EventType]struct{}
	retries   uint64
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithEventTypes restricts delivery to the given event types. By default
// every event is delivered.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

// WithRetries sets how many times a failed POST is retried per endpoint.
func WithRetries(n uint64) Option {
	return func(s *Sink) { s.retries = n }
}

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client:  &http.Client{Timeout: 2 * time.Second},
		retries: 2,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Attach subscribes the sink to every event on the bus. The returned func
// detaches it.
func (s *Sink) Attach(bus *engine.EventBus) func() {
	return bus.Subscribe(engine.EventAll, func(ctx context.Context, ev core.Event) {
		s.OnEvent(ctx, ev)
	})
}

// OnEvent posts the event JSON to all endpoints.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return
		}
	}
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	for _, ep := range s.endpoints {
		if err := s.deliver(ctx, ep, e.Type, body); err != nil {
			s.log.Warn("webhook delivery failed", "endpoint", ep, "event", e.Type, "err", err)
		}
	}
}

func (s *Sink) deliver(ctx context.Context, endpoint string, typ core.EventType, body []byte) error {
	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Gamifyd-Event", string(typ))
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("endpoint returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("endpoint returned %d", resp.StatusCode))
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries), ctx)
	return backoff.Retry(post, bo)
}
