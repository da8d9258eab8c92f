package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

const (
	deviceA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	deviceB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func mustNew(t *testing.T, cfg Config, opts ...Option) Limiter {
	t.Helper()
	l, err := New(cfg, slog.Default(), opts...)
	require.NoError(t, err)
	return l
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "sliding", want: PolicySliding},
		{in: "FIXED", want: PolicyFixed},
		{in: " sliding ", want: PolicySliding},
		{in: "token", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown policy", cfg: Config{Policy: "leaky", Window: time.Minute, MaxRequests: 1}},
		{name: "zero window", cfg: Config{Policy: PolicySliding, Window: 0, MaxRequests: 1}},
		{name: "zero max", cfg: Config{Policy: PolicyFixed, Window: time.Minute, MaxRequests: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, slog.Default())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSliding_HundredPerMinute(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, DefaultConfig(), WithClock(clock.Now))

	for i := 0; i < 100; i++ {
		assert.True(t, l.Admit(deviceA), "request %d should be admitted", i+1)
		clock.Advance(500 * time.Millisecond)
	}
	assert.False(t, l.Admit(deviceA), "101st request within the window must be rejected")

	// still inside the window of the earliest request
	clock.Advance(9 * time.Second)
	assert.False(t, l.Admit(deviceA))

	// the first request has aged out, one slot is free again
	clock.Advance(time.Second)
	assert.True(t, l.Admit(deviceA))
	assert.False(t, l.Admit(deviceA))
}

func TestSliding_CapacityRecoversAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Config{Policy: PolicySliding, Window: time.Minute, MaxRequests: 3}, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		require.True(t, l.Admit(deviceA))
	}
	require.False(t, l.Admit(deviceA))

	clock.Advance(time.Minute + time.Millisecond)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Admit(deviceA))
	}
	assert.False(t, l.Admit(deviceA))
}

func TestSliding_DevicesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Config{Policy: PolicySliding, Window: time.Minute, MaxRequests: 2}, WithClock(clock.Now))

	assert.True(t, l.Admit(deviceA))
	assert.True(t, l.Admit(deviceA))
	assert.False(t, l.Admit(deviceA))

	assert.True(t, l.Admit(deviceB))
	assert.True(t, l.Admit(deviceB))
	assert.False(t, l.Admit(deviceB))
}

func TestSliding_ConcurrentAdmitsExactlyMax(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Config{Policy: PolicySliding, Window: time.Minute, MaxRequests: 100}, WithClock(clock.Now))

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 250; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(deviceA) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), admitted.Load())
}

func TestSliding_RetryAfter(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Config{Policy: PolicySliding, Window: time.Minute, MaxRequests: 2}, WithClock(clock.Now))
	advisor, ok := l.(RetryAdvisor)
	require.True(t, ok)

	assert.Zero(t, advisor.RetryAfter(deviceA))
	require.True(t, l.Admit(deviceA))
	clock.Advance(10 * time.Second)
	require.True(t, l.Admit(deviceA))
	assert.Equal(t, 50*time.Second, advisor.RetryAfter(deviceA))

	clock.Advance(20 * time.Second)
	assert.Equal(t, 30*time.Second, advisor.RetryAfter(deviceA))
}

func TestSliding_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Config{Policy: PolicySliding, Window: time.Minute, MaxRequests: 5}, WithClock(clock.Now))
	sw := l.(*slidingWindow)

	l.Admit(deviceA)
	clock.Advance(30 * time.Second)
	l.Admit(deviceB)
	require.Equal(t, 2, sw.tracked())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, sw.Sweep())
	assert.Equal(t, 1, sw.tracked())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, sw.Sweep())
	assert.Equal(t, 0, sw.tracked())
}

func TestFixed_BucketLimit(t *testing.T) {
	clock := newFakeClock()
	l := mustNew(t, Config{Policy: PolicyFixed, Window: time.Minute, MaxRequests: 3}, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Admit(deviceA))
	}
	assert.False(t, l.Admit(deviceA))
	assert.False(t, l.Admit(deviceA))
	assert.True(t, l.Admit(deviceB))

	// next aligned bucket starts fresh
	clock.Advance(time.Minute)
	assert.True(t, l.Admit(deviceA))
}

func TestFixed_BucketKey(t *testing.T) {
	clock := newFakeClock()
	f := newFixedBucket(Config{Policy: PolicyFixed, Window: 15 * time.Minute, MaxRequests: 1000}, NewLocalCounter(time.Minute), clock.Now, slog.Default())

	k1 := f.bucketKey(deviceA)
	clock.Advance(time.Minute)
	assert.Equal(t, k1, f.bucketKey(deviceA), "same 15 minute bucket")
	clock.Advance(15 * time.Minute)
	assert.NotEqual(t, k1, f.bucketKey(deviceA))
	assert.Contains(t, k1, "rate_limit:"+deviceA+":")
}

type failingCounter struct{}

func (failingCounter) IncrementWithTTL(string, time.Duration) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

func TestFixed_CounterFailureAdmits(t *testing.T) {
	l := mustNew(t, Config{Policy: PolicyFixed, Window: time.Minute, MaxRequests: 1}, WithCounter(failingCounter{}))

	assert.True(t, l.Admit(deviceA))
	assert.True(t, l.Admit(deviceA))
}

func TestLocalCounter_Expiry(t *testing.T) {
	c := NewLocalCounter(time.Minute)

	n, err := c.IncrementWithTTL("k", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.IncrementWithTTL("k", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	time.Sleep(40 * time.Millisecond)
	n, err = c.IncrementWithTTL("k", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
