// Package ratelimit throttles clients to a fixed number of requests per window.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter provides rate limiting functionality
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
	now     func() time.Time

	requestsPerWindow int
	window            time.Duration
	staleAfter        time.Duration
	lastCleanup       time.Time

	rejected atomic.Int64
}

type clientInfo struct {
	windowStart time.Time
	lastSeen    time.Time
	requests    int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	// StaleAfter drops idle clients; zero means ten windows.
	StaleAfter time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 120}
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	Rejected    int64 `json:"rejected"`
	ClientCount int64 `json:"clients"`
}

// NewLimiter creates a new rate limiter. Stale entries are swept lazily
// from Allow, so there is no goroutine to stop.
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	l := &Limiter{
		clients:           make(map[string]*clientInfo),
		now:               time.Now,
		requestsPerWindow: config.RequestsPerMinute,
		window:            time.Minute,
		staleAfter:        config.StaleAfter,
	}
	if l.staleAfter <= 0 {
		l.staleAfter = 10 * l.window
	}
	return l
}

// Allow checks if a request from the given client should be allowed
func (l *Limiter) Allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[clientIP]
	if !ok {
		l.clients[clientIP] = &clientInfo{windowStart: now, lastSeen: now, requests: 1}
		return true
	}
	c.lastSeen = now
	if now.Sub(c.windowStart) >= l.window {
		c.windowStart = now
		c.requests = 1
		return true
	}
	if c.requests >= l.requestsPerWindow {
		l.rejected.Add(1)
		return false
	}
	c.requests++
	return true
}

// retryAfter returns the seconds until the client's window resets.
func (l *Limiter) retryAfter(clientIP string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[clientIP]
	if !ok {
		return 0
	}
	left := l.window - l.now().Sub(c.windowStart)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastCleanup) < l.window {
		return
	}
	l.lastCleanup = now
	cutoff := now.Add(-l.staleAfter)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

// ActiveClients returns the number of currently tracked clients
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		Rejected:    l.rejected.Load(),
		ClientCount: int64(l.ActiveClients()),
	}
}

// Middleware rate limits requests whose method matches; a nil match
// limits everything. onLimit may be nil.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, match func(*http.Request) bool, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if match != nil && !match(r) {
				next.ServeHTTP(w, r)
				return
			}
			clientIP := extractIP(r)
			if !l.Allow(clientIP) {
				if secs := l.retryAfter(clientIP); secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Mutating matches requests that change state.
func Mutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
