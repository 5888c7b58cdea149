package redis

import (
	"context"
	"strconv"
	"time"
)

// Counter is the part of [*Client] the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

var _ Counter = (*Client)(nil)

// Limiter is a fixed-window request counter. Each (key, window) pair maps
// to one Redis counter that expires when the window closes.
type Limiter struct {
	counter Counter
	prefix  string
	now     func() time.Time
}

// NewLimiter returns a limiter whose keys are namespaced with prefix.
func NewLimiter(counter Counter, prefix string) *Limiter {
	return &Limiter{counter: counter, prefix: prefix, now: time.Now}
}

// Allow counts one hit for key in the current window and reports whether
// the count is still within limit. A non-positive limit or window always
// allows without touching Redis.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	bucket := l.now().UnixNano() / int64(window)
	k := l.prefix + ":" + key + ":" + strconv.FormatInt(bucket, 10)

	n, err := l.counter.Incr(ctx, k)
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.counter.Expire(ctx, k, window); err != nil {
			return false, err
		}
	} else if n == limit+1 {
		// First rejection in this window: make sure a lost EXPIRE on the
		// first hit cannot pin the counter forever.
		if ttl, err := l.counter.TTL(ctx, k); err == nil && ttl < 0 {
			_ = l.counter.Expire(ctx, k, window)
		}
	}
	return n <= limit, nil
}
