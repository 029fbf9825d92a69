package worker

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a token bucket limiter.
type RateLimiter struct {
	lastUpdate time.Time
	rate       float64
	burst      int
	tokens     float64
	requests   int64
	rejected   int64
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second
// with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow reports whether a request should proceed.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.requests++

	now := time.Now()
	rl.tokens += now.Sub(rl.lastUpdate).Seconds() * rl.rate
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}
	rl.lastUpdate = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	rl.rejected++
	return false
}

// PerClientRateLimiter keys token buckets by client address so one
// noisy dashboard cannot starve everyone's analyze calls.
type PerClientRateLimiter struct {
	lastCleanup     time.Time
	clients         map[string]*RateLimiter
	rate            float64
	burst           int
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	mu              sync.Mutex
}

// NewPerClientRateLimiter creates a per-client limiter.
func NewPerClientRateLimiter(rate float64, burst int) *PerClientRateLimiter {
	return &PerClientRateLimiter{
		rate:            rate,
		burst:           burst,
		clients:         make(map[string]*RateLimiter),
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// Allow reports whether a request from the client should proceed.
func (pcrl *PerClientRateLimiter) Allow(clientKey string) bool {
	pcrl.mu.Lock()

	if time.Since(pcrl.lastCleanup) > pcrl.cleanupInterval {
		pcrl.cleanupLocked()
	}

	limiter, ok := pcrl.clients[clientKey]
	if !ok {
		limiter = NewRateLimiter(pcrl.rate, pcrl.burst)
		pcrl.clients[clientKey] = limiter
	}
	pcrl.mu.Unlock()

	return limiter.Allow()
}

// cleanupLocked drops buckets idle past maxIdleTime. Caller holds
// pcrl.mu; each limiter's lock is taken only briefly.
func (pcrl *PerClientRateLimiter) cleanupLocked() {
	now := time.Now()
	for key, limiter := range pcrl.clients {
		limiter.mu.Lock()
		idle := now.Sub(limiter.lastUpdate)
		limiter.mu.Unlock()
		if idle > pcrl.maxIdleTime {
			delete(pcrl.clients, key)
		}
	}
	pcrl.lastCleanup = now
}

// Stats returns aggregate limiter statistics.
func (pcrl *PerClientRateLimiter) Stats() map[string]any {
	pcrl.mu.Lock()
	limiters := make([]*RateLimiter, 0, len(pcrl.clients))
	for _, limiter := range pcrl.clients {
		limiters = append(limiters, limiter)
	}
	active := len(pcrl.clients)
	rate := pcrl.rate
	burst := pcrl.burst
	pcrl.mu.Unlock()

	var requests, rejected int64
	for _, limiter := range limiters {
		limiter.mu.Lock()
		requests += limiter.requests
		rejected += limiter.rejected
		limiter.mu.Unlock()
	}

	return map[string]any{
		"rate":           rate,
		"burst":          burst,
		"active_clients": active,
		"total_requests": requests,
		"total_rejected": rejected,
	}
}

// PerClientRateLimitMiddleware enforces the per-client limiter,
// keying on the address the RealIP middleware resolved.
func PerClientRateLimitMiddleware(limiter *PerClientRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.RemoteAddr
			if ip := r.Header.Get("X-Real-IP"); ip != "" {
				clientKey = ip
			}
			if !limiter.Allow(clientKey) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
