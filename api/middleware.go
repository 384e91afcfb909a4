/*
middleware.go - Authentication, authorization, rate limiting and access logs

PURPOSE:
  Everything that runs before a handler touches the domain. Handlers can
  assume a synced, organization-scoped caller is in the request context.

AUTHENTICATION FLOW:
  1. Read "Authorization: Bearer <token>"
  2. identity.Verifier checks signature, expiry and issuer
  3. identity.Provisioner syncs the caller's organization and user record
  4. The resulting points.User is stored in the context

  Missing or bad tokens answer 401. Role checks (RequireRole) answer 403.

RATE LIMITING:
  Write endpoints that move points (recognitions, redemptions) get a token
  bucket per caller. Exhausted buckets answer 429.

SEE ALSO:
  - identity/claims.go: Token shape
  - server.go: Where each middleware is mounted
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// CALLER CONTEXT
// =============================================================================

type callerKey struct{}

func withCaller(ctx context.Context, u points.User) context.Context {
	return context.WithValue(ctx, callerKey{}, u)
}

// callerFrom returns the authenticated user. Only valid behind Authenticate.
func callerFrom(ctx context.Context) points.User {
	u, _ := ctx.Value(callerKey{}).(points.User)
	return u
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Authenticate verifies the bearer token and syncs its subject.
func Authenticate(verifier *identity.Verifier, provisioner *identity.Provisioner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeStatus(w, http.StatusUnauthorized, points.KindUnauthorized, "missing bearer token")
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				writeStatus(w, http.StatusUnauthorized, points.KindUnauthorized, err.Error())
				return
			}
			user, err := provisioner.Sync(r.Context(), claims)
			if err != nil {
				if points.KindOf(err) == points.KindUnauthorized {
					writeStatus(w, http.StatusUnauthorized, points.KindUnauthorized, err.Error())
					return
				}
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRole rejects callers below min.
func RequireRole(min points.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if caller := callerFrom(r.Context()); !caller.Role.AtLeast(min) {
				writeError(w, fmt.Errorf("%w: requires role %s", points.ErrUnauthorized, min))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// RateLimiter keeps one token bucket per caller.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[points.UserID]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[points.UserID]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(user points.UserID) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[user]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[user] = l
	}
	return l
}

// Handler must run behind Authenticate.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		if !rl.limiter(caller.ID).Allow() {
			w.Header().Set("Retry-After", "1")
			writeStatus(w, http.StatusTooManyRequests, "RateLimited", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Prune drops buckets that are full again, i.e. idle callers.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for id, l := range rl.limiters {
		if l.TokensAt(now) >= float64(rl.burst) {
			delete(rl.limiters, id)
		}
	}
}

// =============================================================================
// ACCESS LOG
// =============================================================================

// AccessLog writes one logrus entry per request, tagged with chi's request id.
func AccessLog(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Error("request failed")
				return
			}
			entry.Info("request")
		})
	}
}
