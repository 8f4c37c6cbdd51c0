package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Per-client token bucket defaults for /upload and /query. Both endpoints
// call the embedder and one of them also calls an LLM, so they are the only
// routes worth protecting.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

const (
	// bucketTTL is how long an idle client's bucket is retained.
	bucketTTL = 5 * time.Minute
	// sweepEvery is the period of the idle bucket sweep.
	sweepEvery = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a token bucket per client IP.
type rateLimiter struct {
	// mu protects buckets.
	mu      sync.Mutex
	buckets map[string]*bucket

	rps   rate.Limit
	burst int
	log   *slog.Logger

	// onReject, when set, is called for every request turned away.
	onReject func(r *http.Request)
}

// newRateLimiter constructs a rateLimiter and starts the idle bucket sweep.
// The returned stop function ends the sweep and may be called more than once.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				rl.sweep(now.Add(-bucketTTL))
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// reserve takes a token from ip's bucket. It returns zero when the request
// may proceed, or how long the client should wait otherwise. A refused
// reservation gives its token back.
func (rl *rateLimiter) reserve(ip string, now time.Time) time.Duration {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// sweep drops buckets idle since before cutoff.
func (rl *rateLimiter) sweep(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// size reports the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware answers 429 with a Retry-After header, in whole seconds, when
// the client's bucket is empty.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		delay := rl.reserve(ip, time.Now())
		if delay <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.Duration("retry_after", delay),
		)
		if rl.onReject != nil {
			rl.onReject(r)
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
		writeJSONError(r.Context(), w, "rate limit exceeded", http.StatusTooManyRequests)
	})
}

// retryAfterSeconds rounds delay up to whole seconds, at least one.
func retryAfterSeconds(delay time.Duration) int {
	s := int(math.Ceil(delay.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
