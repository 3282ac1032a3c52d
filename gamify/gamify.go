// Package gamify is the embedding facade: it assembles an engine.Service
// with functional options for callers that want the progression engine
// in-process instead of behind the HTTP API.
package gamify

import (
	"log/slog"

	mem "gamifyd/adapters/memory"
	"gamifyd/core"
	"gamifyd/engine"
	"gamifyd/leaderboard"
	"gamifyd/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	store engine.Store
	mode  engine.DispatchMode
	opts  engine.Options
	hub   *realtime.Hub
	board leaderboard.Board
}

// WithStore sets the persistence adapter.
func WithStore(s engine.Store) Option { return func(c *config) { c.store = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithCurve overrides the leveling curve.
func WithCurve(curve core.LevelCurve) Option { return func(c *config) { c.opts.Curve = curve } }

// WithDistribution sets the team reward distribution policy.
func WithDistribution(d engine.Distribution) Option {
	return func(c *config) { c.opts.Distribution = d }
}

// WithMaxRetries caps how many times transactional workflows retry on
// conflict before giving up.
func WithMaxRetries(n int) Option { return func(c *config) { c.opts.MaxRetries = n } }

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option { return func(c *config) { c.opts.Logger = log } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboard keeps a board current from xp_gained events.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// New builds a configured Service. Defaults: in-memory storage, async
// dispatch, the standard leveling curve, initiator distribution.
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = mem.New()
	}
	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewService(cfg.store, bus, cfg.opts)
	if cfg.hub != nil {
		realtime.Bridge(bus, cfg.hub)
	}
	if cfg.board != nil {
		leaderboard.Bridge(bus, cfg.board, cfg.opts.Logger)
	}
	return svc
}
