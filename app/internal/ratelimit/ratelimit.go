// Package ratelimit throttles console requests per client key.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Limiter is a per-key token bucket. Idle buckets are dropped by Sweep.
type Limiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	tokensPerMin float64
	maxTokens    float64
	errorMessage string
	now          func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Config for creating a new rate limiter
type Config struct {
	TokensPerMinute int    // Number of tokens added per minute
	MaxTokens       int    // Maximum tokens that can be accumulated
	ErrorMessage    string // Message to return when rate limited
}

// New creates a new rate limiter
func New(cfg Config) *Limiter {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = cfg.TokensPerMinute
	}
	if cfg.ErrorMessage == "" {
		cfg.ErrorMessage = "Too many requests. Please slow down."
	}
	return &Limiter{
		buckets:      make(map[string]*bucket),
		tokensPerMin: float64(cfg.TokensPerMinute),
		maxTokens:    float64(cfg.MaxTokens),
		errorMessage: cfg.ErrorMessage,
		now:          time.Now,
	}
}

// Allow takes one token for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refillLocked(key)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the whole tokens left for key.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.refillLocked(key).tokens)
}

// Reset forgets key, e.g. after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Sweep drops buckets idle for longer than idle and reports how many.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastCheck) > idle {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

func (l *Limiter) refillLocked(key string) *bucket {
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.maxTokens, lastCheck: now}
		l.buckets[key] = b
		return b
	}
	b.tokens += now.Sub(b.lastCheck).Minutes() * l.tokensPerMin
	if b.tokens > l.maxTokens {
		b.tokens = l.maxTokens
	}
	b.lastCheck = now
	return b
}

// Middleware rejects requests over the limit with a JSON 429. key extracts
// the bucket key, usually the client IP.
func (l *Limiter) Middleware(key func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(key(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate_limited", "message": l.errorMessage})
			return
		}
		next.ServeHTTP(w, r)
	})
}
