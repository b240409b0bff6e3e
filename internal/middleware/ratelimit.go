package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/httputil"
)

// visitorTTL is how long a caller's bucket survives without traffic before
// the cleanup loop evicts it.
const visitorTTL = 3 * time.Minute

// visitor tracks one caller's token bucket and slow-down window.
type visitor struct {
	limiter     *rate.Limiter
	lastSeen    time.Time
	windowStart time.Time
	seen        int
}

// bucketStore manages the per-caller buckets for one tier. The bucket refills
// continuously at capacity/window and holds at most capacity tokens, so a
// caller gets its full burst back after one idle window.
type bucketStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	capacity int
	window   time.Duration
	nowFunc  func() time.Time // injectable clock for testing
}

func newBucketStore(capacity int, window time.Duration) *bucketStore {
	return &bucketStore{
		visitors: make(map[string]*visitor),
		capacity: capacity,
		window:   window,
		nowFunc:  time.Now,
	}
}

// perSecond is the bucket's refill rate.
func (s *bucketStore) perSecond() float64 {
	return float64(s.capacity) / s.window.Seconds()
}

// visitorLocked returns (or creates) the visitor for ip. Callers hold s.mu.
func (s *bucketStore) visitorLocked(ip string, now time.Time) *visitor {
	v, exists := s.visitors[ip]
	if !exists {
		v = &visitor{
			limiter:     rate.NewLimiter(rate.Limit(s.perSecond()), s.capacity),
			windowStart: now,
		}
		s.visitors[ip] = v
	}
	v.lastSeen = now
	return v
}

// decision is the outcome of one bucket check. All durations are whole
// seconds, rounded up, ready for the response headers.
type decision struct {
	allowed    bool
	remaining  int
	resetAfter int
	retryAfter int
}

// allow takes one token from ip's bucket if available.
func (s *bucketStore) allow(ip string) decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	v := s.visitorLocked(ip, now)

	allowed := v.limiter.AllowN(now, 1)
	tokens := v.limiter.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}

	d := decision{
		allowed:   allowed,
		remaining: int(math.Floor(tokens)),
	}
	d.resetAfter = int(math.Ceil((float64(s.capacity) - tokens) / s.perSecond()))
	if !allowed {
		d.retryAfter = int(math.Ceil((1 - tokens) / s.perSecond()))
		if d.retryAfter < 1 {
			d.retryAfter = 1
		}
	}
	return d
}

// slowDown counts ip's requests in a fixed window and returns the delay owed
// for this one: step for each request beyond after, capped at max.
func (s *bucketStore) slowDown(ip string, after int, step, max time.Duration) time.Duration {
	if after <= 0 || step <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	v := s.visitorLocked(ip, now)

	if now.Sub(v.windowStart) >= s.window {
		v.windowStart = now
		v.seen = 0
	}
	v.seen++

	over := v.seen - after
	if over <= 0 {
		return 0
	}
	delay := time.Duration(over) * step
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// cleanup evicts visitors not seen within ttl.
func (s *bucketStore) cleanup(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) > ttl {
			delete(s.visitors, ip)
		}
	}
}

// len returns the number of tracked visitors (used in tests).
func (s *bucketStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimiterConfig carries the bucket sizes for both tiers plus the
// slow-down gate parameters. Window applies to both tiers.
type RateLimiterConfig struct {
	Window           time.Duration
	MaxRequests      int
	ReadMaxRequests  int
	SlowDownAfter    int
	SlowDownDelay    time.Duration
	SlowDownMaxDelay time.Duration
	CleanupInterval  time.Duration
}

// RateLimiter enforces per-caller token buckets in two tiers: a strict one
// for the mutation routes and a lenient one for reads. The strict tier also
// runs a slow-down gate that delays chatty callers before they reach the
// bucket check, soaking up retry storms without rejecting them outright.
type RateLimiter struct {
	strict  *bucketStore
	lenient *bucketStore
	cfg     RateLimiterConfig
	logger  *slog.Logger

	// Injectable so tests can observe requested delays without sleeping.
	delayFunc func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a rate limiter from the given config.
func NewRateLimiter(cfg RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		strict:    newBucketStore(cfg.MaxRequests, cfg.Window),
		lenient:   newBucketStore(cfg.ReadMaxRequests, cfg.Window),
		cfg:       cfg,
		logger:    logger,
		delayFunc: sleepContext,
	}
}

// Strict returns the middleware for mutation routes: slow-down gate first,
// then the strict bucket.
func (rl *RateLimiter) Strict() func(http.Handler) http.Handler {
	return rl.middleware(rl.strict, true)
}

// Lenient returns the middleware for read routes.
func (rl *RateLimiter) Lenient() func(http.Handler) http.Handler {
	return rl.middleware(rl.lenient, false)
}

func (rl *RateLimiter) middleware(store *bucketStore, slowDown bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if slowDown {
				if delay := store.slowDown(ip, rl.cfg.SlowDownAfter, rl.cfg.SlowDownDelay, rl.cfg.SlowDownMaxDelay); delay > 0 {
					if err := rl.delayFunc(r.Context(), delay); err != nil {
						// Caller went away while queued; nothing to answer.
						return
					}
				}
			}

			d := store.allow(ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(store.capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(d.resetAfter))

			if !d.allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.retryAfter))
				rl.logger.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, apperrors.RateLimited(d.retryAfter), rl.logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Cleanup evicts stale buckets on an interval until ctx is cancelled. Run it
// in its own goroutine.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	interval := rl.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.strict.cleanup(visitorTTL)
			rl.lenient.cleanup(visitorTTL)
		}
	}
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// clientIP extracts the client IP address from the request. It checks
// X-Forwarded-For and X-Real-IP before falling back to RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First address in the chain is the original client.
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
