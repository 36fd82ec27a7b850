package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	Enabled           bool
	TrustProxy        bool
}

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	config  RateLimitConfig
	clients map[string]*rate.Limiter
	mu      sync.Mutex
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func NewRateLimiter(config RateLimitConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *RateLimiter {
	return &RateLimiter{
		config:  config,
		clients: make(map[string]*rate.Limiter),
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Run evicts idle clients every interval until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// A full bucket means the client has been quiet long enough to forget.
	for ip, limiter := range rl.clients {
		if limiter.TokensAt(now) >= float64(rl.config.BurstSize) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.clients[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
		rl.clients[ip] = limiter
	}
	return limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r, rl.config.TrustProxy)
		if !rl.getLimiter(ip).Allow() {
			rl.metrics.RateLimitedTotal.Inc()
			rl.logger.Warn(r.Context(), "[RATE_LIMIT] Rate limit exceeded", logging.Fields{
				"client_ip":           ip,
				"method":              r.Method,
				"path":                r.URL.Path,
				"requests_per_second": rl.config.RequestsPerSecond,
				"burst_size":          rl.config.BurstSize,
			})

			w.Header().Set("Retry-After", "1")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if i := strings.IndexByte(xff, ','); i != -1 {
				return strings.TrimSpace(xff[:i])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
