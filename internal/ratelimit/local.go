package ratelimit

import (
	"context"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket per key. Idle buckets are
// evicted after the rule window.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: cache.New(time.Hour, 10*time.Minute)}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, rule Rule) (Decision, error) {
	if !rule.enabled() {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	var lim *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Every(rule.Window/time.Duration(rule.Limit)), rule.Limit)
	}
	l.buckets.Set(key, lim, rule.Window)
	l.mu.Unlock()

	now := time.Now()
	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: int(lim.TokensAt(now))}, nil
}
