package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/slimedodge/server/internal/auth"
)

const (
	rateLimitExceededJSON = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later.","retry_after":%d}`
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	// Global rate limit (all endpoints, per IP)
	GlobalLimit  int
	GlobalWindow time.Duration

	// Per-observer rate limit (authenticated endpoints)
	ObserverLimit  int
	ObserverWindow time.Duration

	// Token issuing endpoint
	AuthLimit  int
	AuthWindow time.Duration
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalLimit:    1000,
		GlobalWindow:   1 * time.Minute,
		ObserverLimit:  100,
		ObserverWindow: 1 * time.Minute,
		AuthLimit:      5,
		AuthWindow:     1 * time.Minute,
	}
}

// RateLimitMiddleware limits requests per client IP
func RateLimitMiddleware(limit int, window time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return keyedRateLimit(limit, window, logger, func(r *http.Request) string {
		return getClientIP(r)
	})
}

// ObserverRateLimitMiddleware limits requests per authenticated observer,
// falling back to the client IP when the request carries no observer
func ObserverRateLimitMiddleware(limit int, window time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return keyedRateLimit(limit, window, logger, func(r *http.Request) string {
		if id, ok := auth.GetObserverID(r); ok {
			return "observer:" + id
		}
		return getClientIP(r)
	})
}

func keyedRateLimit(limit int, window time.Duration, logger zerolog.Logger, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			context, err := instance.Get(r.Context(), keyFn(r))
			if err != nil {
				// a broken limiter must not take the service down
				logger.Error().Err(err).Msg("rate limiter error")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(context.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(context.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(context.Reset, 10))

			if context.Reached {
				retryAfter := int(time.Until(time.Unix(context.Reset, 0)).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := fmt.Fprintf(w, rateLimitExceededJSON, retryAfter); err != nil {
					logger.Debug().Err(err).Msg("error writing rate limit response")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from the request
// Handles X-Forwarded-For header for proxied requests
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip := r.RemoteAddr
	if i := strings.LastIndexByte(ip, ':'); i >= 0 {
		return ip[:i]
	}
	return ip
}
