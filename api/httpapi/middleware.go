package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"gamifyd/core"
)

// company resolves the tenant for a request from its API key.
func (a *api) company(r *http.Request) (core.Company, error) {
	key := extractAPIKey(r)
	if key == "" {
		return core.Company{}, core.InvalidArgumentf("missing API key")
	}
	return a.svc.CompanyByAPIKey(r.Context(), key)
}

// authed wraps a tenant handler with API key authentication.
func (a *api) authed(fn func(http.ResponseWriter, *http.Request, core.Company)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company, err := a.company(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key", nil)
			return
		}
		fn(w, r, company)
	}
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
