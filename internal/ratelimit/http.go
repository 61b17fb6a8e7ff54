package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AnonymousKey identifies callers with no usable address.
const AnonymousKey = "anonymous"

// ClientIP derives a stable client identity from the request: the first
// valid X-Forwarded-For entry, then X-Real-IP, then the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			return host
		}
	}
	return AnonymousKey
}

// ClientKey namespaces the client identity, e.g. "assistant:10.0.0.1".
func ClientKey(r *http.Request, prefix string) string {
	return prefix + ":" + ClientIP(r)
}

// Policy is the admission rule applied by Middleware.
type Policy struct {
	Prefix string
	Window time.Duration
	Max    int
}

// Middleware rejects requests over the policy with 429 and Retry-After.
// Backend errors are logged and the request is admitted.
func Middleware(limiter Limiter, policy Policy, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r, policy.Prefix)
			res, err := limiter.CheckAndConsume(r.Context(), key, policy.Window, policy.Max)
			if err != nil {
				if logger != nil {
					logger.Errorw("rate limiter error", "error", err, "key", key)
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAtEpochMs(), 10))

			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(res.RetryAfter(time.Now())))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "Rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
