package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/slog"
)

type fixedBucket struct {
	counter Counter
	length  time.Duration
	max     int64
	now     func() time.Time
	log     *slog.Logger
}

func newFixedBucket(cfg Config, counter Counter, now func() time.Time, log *slog.Logger) *fixedBucket {
	return &fixedBucket{
		counter: counter,
		length:  cfg.Window,
		max:     int64(cfg.MaxRequests),
		now:     now,
		log:     log,
	}
}

// bucketKey is rate_limit:{identity}:{floor(now / bucket)}.
func (f *fixedBucket) bucketKey(identity string) string {
	return fmt.Sprintf("rate_limit:%s:%d", identity, f.now().UnixNano()/int64(f.length))
}

func (f *fixedBucket) Admit(identity string) bool {
	count, err := f.counter.IncrementWithTTL(f.bucketKey(identity), f.length)
	if err != nil {
		// Counter store is unavailable; admit rather than lock every device out.
		f.log.Warn("rate limit counter failed, admitting request", "error", err)
		return true
	}
	return count <= f.max
}

// LocalCounter is an in-process Counter backed by go-cache.
type LocalCounter struct {
	mu sync.Mutex
	c  *cache.Cache
}

// NewLocalCounter creates a counter whose expired keys are purged every
// cleanup interval.
func NewLocalCounter(cleanup time.Duration) *LocalCounter {
	return &LocalCounter{c: cache.New(cache.NoExpiration, cleanup)}
}

func (l *LocalCounter) IncrementWithTTL(key string, ttl time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n, err := l.c.IncrementInt64(key, 1); err == nil {
		return n, nil
	}
	l.c.Set(key, int64(1), ttl)
	return 1, nil
}
