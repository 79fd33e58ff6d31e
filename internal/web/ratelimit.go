package web

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// rateLimiter allows rate requests per window for each client IP using
// fixed windows. Counters expire with their window.
type rateLimiter struct {
	counts *cache.Cache
	rate   int
	window time.Duration
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		counts: cache.New(window, 2*window),
		rate:   rate,
		window: window,
	}
}

// allow counts a request from ip and reports whether it is within the limit.
func (rl *rateLimiter) allow(ip string) bool {
	if err := rl.counts.Add(ip, 1, rl.window); err == nil {
		return rl.rate > 0
	}
	n, err := rl.counts.IncrementInt(ip, 1)
	if err != nil {
		// The window expired between Add and Increment.
		rl.counts.Set(ip, 1, rl.window)
		return rl.rate > 0
	}
	return n <= rl.rate
}

// middleware rejects requests over the limit with 429.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			respondErrorJSON(w, rateLimitMessage, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the request's remote host. TrustedRealIP has already
// rewritten RemoteAddr for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
