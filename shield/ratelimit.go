package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the limit applied per client IP. Each tool call
// drives a full browser session, so the defaults are deliberately low.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultRateLimit allows 30 requests per minute per IP.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{MaxRequests: 30, Window: time.Minute}
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter provides in-memory per-IP rate limiting. Expired buckets are
// garbage collected when StartGC is running.
type RateLimiter struct {
	cfg     RateLimitConfig
	buckets sync.Map
	exclude []string // path prefixes excluded from limiting
}

// NewRateLimiter creates a rate limiter with the default config.
func NewRateLimiter(excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{cfg: DefaultRateLimit(), exclude: excludePrefixes}
}

// WithConfig replaces the limit configuration.
func (rl *RateLimiter) WithConfig(cfg RateLimitConfig) *RateLimiter {
	rl.cfg = cfg
	return rl
}

// StartGC starts a background goroutine that drops expired buckets every
// five minutes. Stops when done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}) {
	tick := time.NewTicker(5 * time.Minute)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := time.Now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		if now.After(b.resetAt) {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	if rl.cfg.MaxRequests <= 0 {
		return true
	}
	now := time.Now()
	val, loaded := rl.buckets.LoadOrStore(ip, &bucket{
		count:   1,
		resetAt: now.Add(rl.cfg.Window),
	})
	if !loaded {
		return true
	}
	b := val.(*bucket)
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(rl.cfg.Window)
		return true
	}
	b.count++
	return b.count <= rl.cfg.MaxRequests
}

// Middleware enforces the limit, answering 429 JSON when exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)
		w.Header().Set("Retry-After", "60")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate limit exceeded",
		})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
