package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gamifyd/adapters/jsonfile"
	mem "gamifyd/adapters/memory"
	sqlxAdapter "gamifyd/adapters/sqlx"
	"gamifyd/api/httpapi"
	"gamifyd/config"
	"gamifyd/engine"
	"gamifyd/integrations/webhook"
	"gamifyd/leaderboard"
	"gamifyd/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Hub           *realtime.Hub
	Service       *engine.Service
	Board         leaderboard.Board
	Handler       http.Handler
	Server        *http.Server
	MetricsServer metricsServer
	Bridges       bridges
}

func provideConfig(_ context.Context) (*config.Config, error) {
	// .env is optional; real env vars win either way
	_ = godotenv.Load()
	if path := os.Getenv("GAMIFYD_CONFIG"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStore(ctx context.Context, cfg *config.Config) (engine.Store, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "jsonfile":
		return jsonfile.New(cfg.Storage.Path)
	case "sql":
		store, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

func provideBus(cfg *config.Config) *engine.EventBus {
	if cfg.Engine.AsyncEvents {
		return engine.NewEventBus(engine.DispatchAsync)
	}
	return engine.NewEventBus(engine.DispatchSync)
}

func provideBoard(cfg *config.Config) (leaderboard.Board, error) {
	if !cfg.Leaderboard.Enabled {
		return nil, nil
	}
	switch cfg.Leaderboard.Backend {
	case "memory":
		return leaderboard.NewMemory(), nil
	case "redis":
		return leaderboard.NewRedis(cfg.Leaderboard.Redis)
	default:
		return nil, fmt.Errorf("unknown leaderboard backend: %s", cfg.Leaderboard.Backend)
	}
}

func provideService(cfg *config.Config, log *slog.Logger, store engine.Store, bus *engine.EventBus) *engine.Service {
	opts := cfg.Engine.Options()
	opts.Logger = log
	return engine.NewService(store, bus, opts)
}

// bridges marks the event-stream consumers as wired.
type bridges struct{}

func provideBridges(cfg *config.Config, log *slog.Logger, bus *engine.EventBus, hub *realtime.Hub, board leaderboard.Board) bridges {
	realtime.Bridge(bus, hub)
	if board != nil {
		leaderboard.Bridge(bus, board, log)
	}
	if len(cfg.Webhooks.Endpoints) > 0 {
		sink := webhook.New(cfg.Webhooks.Endpoints,
			webhook.WithRetries(uint64(cfg.Webhooks.Retries)),
			webhook.WithLogger(log))
		sink.Attach(bus)
	}
	if cfg.Metrics.Enabled {
		engine.RegisterMetrics(prometheus.DefaultRegisterer)
	}
	return bridges{}
}

func provideHandler(svc *engine.Service, board leaderboard.Board, hub *realtime.Hub, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, board, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		AdminKey:         cfg.Server.AdminKey,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// metricsServer is a distinct type so the injector can tell the scrape
// listener apart from the API server.
type metricsServer *http.Server

func provideMetricsServer(cfg *config.Config) metricsServer {
	if !cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	return &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var out *os.File
	switch cfg.Logging.Output {
	case "stderr":
		out = os.Stderr
	default:
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
