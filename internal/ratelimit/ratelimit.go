// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultMaxKeys = 50_000

// Limiter allows perMinute events per key with a burst of the same size.
// Least recently seen keys are evicted once maxKeys is reached, so memory
// stays bounded without a cleanup goroutine.
type Limiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func New(perMinute, maxKeys int) (*Limiter, error) {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	cache, err := lru.New[string, *rate.Limiter](maxKeys)
	if err != nil {
		return nil, err
	}
	return &Limiter{
		limiters: cache,
		limit:    rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:    max(perMinute, 1),
	}, nil
}

// Allow reports whether key may proceed now. A nil limiter allows
// everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.limiterFor(key).Allow()
}

// RetryAfter estimates how long key must wait for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if l == nil {
		return 0
	}
	reservation := l.limiterFor(key).Reserve()
	defer reservation.Cancel()
	return reservation.Delay()
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	// Another request may have created one concurrently; keep the first.
	if previous, ok, _ := l.limiters.PeekOrAdd(key, limiter); ok {
		return previous
	}
	return limiter
}
