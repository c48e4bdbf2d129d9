package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/solarperformanceinsight/spi/internal/api/response"
	"github.com/solarperformanceinsight/spi/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = time.Minute
)

// RateLimit caps each authenticated user at requestsPerMin requests per
// clock-aligned minute. The count for a window lives in Redis under a key
// that names the window start and expires when the window ends, so every
// API replica shares it. Requests are let through when Redis is unreachable.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int

	mu  sync.Mutex
	now func() time.Time
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
}

// SetClock replaces the limiter's time source.
func (rl *RateLimit) SetClock(now func() time.Time) {
	rl.mu.Lock()
	rl.now = now
	rl.mu.Unlock()
}

func (rl *RateLimit) clock() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.now()
}

// Limit applies rate limiting based on the user set by auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r)
		if !ok {
			// No user means auth middleware didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}

		now := rl.clock()
		start := now.Truncate(rateLimitWindow)
		reset := start.Add(rateLimitWindow)
		left := reset.Sub(now)

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(user, start), left.Round(time.Second)+time.Second)
		if err != nil {
			// fail open
			slog.Warn("rate limit check failed", "user", user, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retry := int64((left + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.FormatInt(max(retry, 1), 10))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
