package httpapi

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/smartgate/server/internal/auth"
	"github.com/smartgate/server/internal/cache"
	"github.com/smartgate/server/internal/smartgate/types"
)

// statusRecorder captures the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"from", r.RemoteAddr,
			"dur", time.Since(start),
		)
	})
}

type claimsKey struct{}

// claimsFrom returns the token claims attached by requireAdmin, if any.
func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// bearerClaims validates the request's bearer token. On failure it has
// already written the 401.
func bearerClaims(tokens *auth.TokenIssuer, w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusUnauthorized, "missing_token", "bearer token required")
		return nil, false
	}
	claims, err := tokens.Validate(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
		return nil, false
	}
	return claims, true
}

// requireAdmin admits requests carrying a valid bearer token with the admin
// role. A nil issuer disables the check.
func requireAdmin(tokens *auth.TokenIssuer, next http.HandlerFunc) http.HandlerFunc {
	if tokens == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := bearerClaims(tokens, w, r)
		if !ok {
			return
		}
		if claims.Role != types.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

// authorizeUser reports whether the caller may act for userID: the token
// subject must be userID unless the caller is an admin. A nil issuer admits
// everyone. On refusal the response has been written.
func authorizeUser(tokens *auth.TokenIssuer, w http.ResponseWriter, r *http.Request, userID string) bool {
	if tokens == nil {
		return true
	}
	claims, ok := bearerClaims(tokens, w, r)
	if !ok {
		return false
	}
	if claims.Role != types.RoleAdmin && claims.Subject != strings.TrimSpace(userID) {
		writeError(w, http.StatusForbidden, "forbidden", "token does not belong to this user")
		return false
	}
	return true
}

// requireSelf guards routes keyed by a {user} path segment.
func requireSelf(tokens *auth.TokenIssuer, next http.HandlerFunc) http.HandlerFunc {
	if tokens == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if authorizeUser(tokens, w, r, r.PathValue("user")) {
			next(w, r)
		}
	}
}

// GateLimiter throttles decision requests per gate.
type GateLimiter interface {
	Allow(ctx context.Context, gate string) (bool, error)
}

// CacheLimiter is a fixed-window counter shared through the cache, so every
// replica sees the same budget.
type CacheLimiter struct {
	cache  cache.Cache
	hits   int64
	window time.Duration
}

func NewCacheLimiter(c cache.Cache, hits int, window time.Duration) *CacheLimiter {
	return &CacheLimiter{cache: c, hits: int64(max(hits, 1)), window: window}
}

func (l *CacheLimiter) Allow(ctx context.Context, gate string) (bool, error) {
	n, err := l.cache.Incr(ctx, cache.RateLimitKey(gate), l.window)
	if err != nil {
		return true, err
	}
	return n <= l.hits, nil
}

// LocalLimiter keeps one token bucket per gate in process memory.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func NewLocalLimiter(hits int, window time.Duration) *LocalLimiter {
	hits = max(hits, 1)
	return &LocalLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Every(window / time.Duration(hits)),
		burst:   hits,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, gate string) (bool, error) {
	l.mu.Lock()
	b, ok := l.buckets[gate]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[gate] = b
	}
	l.mu.Unlock()
	return b.Allow(), nil
}
