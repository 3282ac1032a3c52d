package httpapi

import (
	"net/http"

	wsadapter "gamifyd/adapters/websocket"
	"gamifyd/engine"
	"gamifyd/leaderboard"
	"gamifyd/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// AdminKey guards company provisioning. If empty, POST /companies is disabled.
	AdminKey string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

type api struct {
	svc   *engine.Service
	board leaderboard.Board
	opts  Options
}

// NewMux builds an http.Handler exposing the gamification REST API and
// WebSocket stream. Every tenant route authenticates via X-API-Key or
// Authorization: Bearer and is scoped to the resolved company.
//
// Routes (all under {prefix}):
//   - POST /companies                        (admin key)
//   - GET  /company
//   - CRUD /users, /teams, /metrics, /objectives, /badges, /rewards
//   - POST /users/{id}/increments
//   - POST /users/{id}/claims
//   - GET  /users/{id}/history
//   - GET  /leaderboard, GET /leaderboard/{userID}
//   - GET  /healthz, WS /ws
func NewMux(svc *engine.Service, board leaderboard.Board, hub *realtime.Hub, opts Options) http.Handler {
	a := &api{svc: svc, board: board, opts: opts}
	mux := http.NewServeMux()

	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(withPrefix(opts.PathPrefix, pattern), h)
	}

	route("GET /healthz", a.handleHealth)
	if hub != nil {
		mux.Handle("GET "+joinPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub, func(r *http.Request) (string, error) {
			company, err := a.company(r)
			if err != nil {
				return "", err
			}
			return company.ID, nil
		}))
	}

	route("POST /companies", a.handleCreateCompany)
	route("GET /company", a.authed(a.handleGetCompany))

	route("POST /users", a.authed(a.handleCreateUser))
	route("GET /users", a.authed(a.handleListUsers))
	route("GET /users/{id}", a.authed(a.handleGetUser))
	route("PUT /users/{id}", a.authed(a.handleUpdateUser))
	route("DELETE /users/{id}", a.authed(a.handleDeleteUser))
	route("POST /users/{id}/increments", a.authed(a.handleIncrement))
	route("POST /users/{id}/claims", a.authed(a.handleClaim))
	route("GET /users/{id}/history", a.authed(a.handleHistory))

	route("POST /teams", a.authed(a.handleCreateTeam))
	route("GET /teams", a.authed(a.handleListTeams))
	route("GET /teams/{id}", a.authed(a.handleGetTeam))
	route("PUT /teams/{id}", a.authed(a.handleUpdateTeam))
	route("DELETE /teams/{id}", a.authed(a.handleDeleteTeam))

	route("POST /metrics", a.authed(a.handleCreateMetric))
	route("GET /metrics", a.authed(a.handleListMetrics))
	route("GET /metrics/{id}", a.authed(a.handleGetMetric))
	route("PUT /metrics/{id}", a.authed(a.handleUpdateMetric))
	route("DELETE /metrics/{id}", a.authed(a.handleDeleteMetric))

	route("POST /objectives", a.authed(a.handleCreateObjective))
	route("GET /objectives", a.authed(a.handleListObjectives))
	route("GET /objectives/{id}", a.authed(a.handleGetObjective))
	route("PUT /objectives/{id}", a.authed(a.handleUpdateObjective))
	route("DELETE /objectives/{id}", a.authed(a.handleDeleteObjective))

	route("POST /badges", a.authed(a.handleCreateBadge))
	route("GET /badges", a.authed(a.handleListBadges))
	route("GET /badges/{id}", a.authed(a.handleGetBadge))
	route("PUT /badges/{id}", a.authed(a.handleUpdateBadge))
	route("DELETE /badges/{id}", a.authed(a.handleDeleteBadge))

	route("POST /rewards", a.authed(a.handleCreateReward))
	route("GET /rewards", a.authed(a.handleListRewards))
	route("GET /rewards/{id}", a.authed(a.handleGetReward))
	route("PUT /rewards/{id}", a.authed(a.handleUpdateReward))
	route("DELETE /rewards/{id}", a.authed(a.handleDeleteReward))

	route("GET /leaderboard", a.authed(a.handleLeaderboardTop))
	route("GET /leaderboard/{userID}", a.authed(a.handleLeaderboardRank))

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// withPrefix prepends the configured prefix to the path part of a
// "METHOD /path" mux pattern.
func withPrefix(prefix, pattern string) string {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == ' ' {
			return pattern[:i+1] + joinPrefix(prefix, pattern[i+1:])
		}
	}
	return joinPrefix(prefix, pattern)
}

func joinPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}
