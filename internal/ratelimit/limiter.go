// Package ratelimit implements the in-memory, per-instance token-bucket
// limiter applied to the password-auth routes (spec.md §4.7).
package ratelimit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lightbasehq/corehub/internal/observability/metrics"
)

const (
	bucketSize    = 11
	windowSeconds = 60
	blockDuration = 10 * time.Minute

	// LoginCost/DefaultCost are the documented per-route token costs.
	LoginCost   = 2
	DefaultCost = 1
)

// bucket is one client IP's token-bucket state.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	blockedAt  *time.Time
}

// Limiter is a single process-local token bucket per client IP.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	ssrKey   string
	ssrCheck bool
}

func New(ssrVerificationKey string, ssrCheckEnabled bool) *Limiter {
	return &Limiter{buckets: make(map[string]*bucket), ssrKey: ssrVerificationKey, ssrCheck: ssrCheckEnabled}
}

// ClientIP resolves the caller's IP, accepting the signed X-SSR-Ip
// header only when its HMAC matches X-SSR-Ip-Verification against the
// shared secret — otherwise falling back to the raw connection address.
func (l *Limiter) ClientIP(r *http.Request) string {
	if l.ssrCheck && l.ssrKey != "" {
		ip := r.Header.Get("X-SSR-Ip")
		sig := r.Header.Get("X-SSR-Ip-Verification")
		if ip != "" && sig != "" && l.verifySSR(ip, sig) {
			return ip
		}
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func (l *Limiter) verifySSR(ip, sig string) bool {
	mac := hmac.New(sha256.New, []byte(l.ssrKey))
	mac.Write([]byte(ip))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// Allow consumes cost tokens from ip's bucket, refilling it lazily up to
// bucketSize every windowSeconds. Returns false once the bucket is
// exhausted or currently blocked.
func (l *Limiter) Allow(ip string, cost float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: bucketSize, lastRefill: now}
		l.buckets[ip] = b
	}

	if b.blockedAt != nil {
		if now.Sub(*b.blockedAt) < blockDuration {
			return false
		}
		b.blockedAt = nil
		b.tokens = bucketSize
		b.lastRefill = now
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	refill := elapsed * (bucketSize / float64(windowSeconds))
	b.tokens = min(bucketSize, b.tokens+refill)
	b.lastRefill = now

	if b.tokens < cost {
		b.blockedAt = &now
		return false
	}
	b.tokens -= cost
	return true
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Middleware applies costFor to every request under a POST/PUT/PATCH on
// /auth/password-based/... and rejects exhausted buckets with 429.
func (l *Limiter) Middleware(costFor func(r *http.Request) (apply bool, cost float64)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apply, cost := costFor(r)
			if !apply {
				next.ServeHTTP(w, r)
				return
			}
			ip := l.ClientIP(r)
			if !l.Allow(ip, cost) {
				metrics.RateLimitRejections.WithLabelValues(routeFamily(r)).Inc()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"key":"server.internal.rateLimit","status":429}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routeFamily(r *http.Request) string {
	return strings.TrimSuffix(r.URL.Path, "/")
}

// CostForPasswordRoutes implements spec.md §4.7's route→cost mapping:
// login costs LoginCost, every other POST/PUT/PATCH under
// /auth/password-based/... costs DefaultCost; everything else is exempt.
func CostForPasswordRoutes(r *http.Request) (bool, float64) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		return false, 0
	}
	if !strings.HasPrefix(r.URL.Path, "/auth/password-based/") {
		return false, 0
	}
	if strings.HasSuffix(r.URL.Path, "/login") {
		return true, LoginCost
	}
	return true, DefaultCost
}
