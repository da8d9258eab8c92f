package device

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

const testID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

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

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestRegistry(opts ...Option) *Registry {
	return NewRegistry(slog.Default(), opts...)
}

func TestValidIdentity(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "lowercase hex", id: testID, want: true},
		{name: "mixed digits", id: "0123456789abcdef0123456789abcdef", want: true},
		{name: "uppercase", id: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", want: false},
		{name: "too short", id: "aaaa", want: false},
		{name: "too long", id: testID + "a", want: false},
		{name: "non hex", id: "gggggggggggggggggggggggggggggggg", want: false},
		{name: "empty", id: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentity(tt.id))
		})
	}
}

func TestRegistry_Validate_AutoRegistersUnknown(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(WithClock(clock.Now))

	assert.True(t, reg.Validate(testID, "s3cr3t"))

	stats, err := reg.Stats(testID)
	require.NoError(t, err)
	assert.Equal(t, testID, stats.DeviceID)
	assert.Equal(t, clock.Now(), stats.RegisteredAt)
	assert.Equal(t, clock.Now(), stats.LastSeen)
	assert.Equal(t, int64(0), stats.UploadCount)
	assert.True(t, stats.IsActive)
}

func TestRegistry_Validate_MismatchAfterAutoRegister(t *testing.T) {
	reg := newTestRegistry()

	require.True(t, reg.Validate(testID, "s3cr3t"))
	assert.False(t, reg.Validate(testID, "wrong"))
	assert.True(t, reg.Validate(testID, "s3cr3t"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Validate_UpdatesLastSeenOnMismatch(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(WithClock(clock.Now))
	require.True(t, reg.Validate(testID, "s3cr3t"))

	clock.Advance(time.Minute)
	assert.False(t, reg.Validate(testID, "wrong"))

	stats, err := reg.Stats(testID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), stats.LastSeen)
}

func TestRegistry_Validate_AutoRegisterDisabled(t *testing.T) {
	reg := newTestRegistry(WithAutoRegister(false))

	assert.False(t, reg.Validate(testID, "s3cr3t"))
	_, err := reg.Stats(testID)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = reg.Register(testID, "s3cr3t", Metadata{})
	require.NoError(t, err)
	assert.True(t, reg.Validate(testID, "s3cr3t"))
}

func TestRegistry_Register(t *testing.T) {
	reg := newTestRegistry()
	meta := Metadata{Model: "Pixel 8", Manufacturer: "Google", AndroidVersion: "14", AppVersion: "1.2.0"}

	rec, err := reg.Register(testID, "s3cr3t", meta)
	require.NoError(t, err)
	assert.Equal(t, testID, rec.Identity)
	assert.Equal(t, SHA256Hasher{}.Digest("s3cr3t"), rec.CredentialDigest)
	assert.Equal(t, meta, rec.Metadata)

	_, err = reg.Register(testID, "other", Metadata{})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	// the original credential still validates
	assert.True(t, reg.Validate(testID, "s3cr3t"))
	assert.False(t, reg.Validate(testID, "other"))
}

func TestRegistry_Register_InvalidIdentity(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Register("not-an-id", "s3cr3t", Metadata{})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_Touch(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(WithClock(clock.Now))

	reg.Touch(testID) // unknown, ignored
	assert.Equal(t, 0, reg.Len())

	require.True(t, reg.Validate(testID, "s3cr3t"))
	clock.Advance(30 * time.Second)
	reg.Touch(testID)
	reg.Touch(testID)

	stats, err := reg.Stats(testID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), stats.LastSeen)
}

func TestRegistry_LastSeenNeverMovesBackwards(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(WithClock(clock.Now))
	require.True(t, reg.Validate(testID, "s3cr3t"))

	clock.Advance(10 * time.Second)
	latest := clock.Now()
	reg.Touch(testID)

	clock.Set(latest.Add(-5 * time.Second))
	reg.Touch(testID)
	reg.Validate(testID, "s3cr3t")

	clock.Set(latest)
	stats, err := reg.Stats(testID)
	require.NoError(t, err)
	assert.Equal(t, latest, stats.LastSeen)
}

func TestRegistry_Stats_IsActive(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{name: "just seen", elapsed: 0, want: true},
		{name: "four minutes", elapsed: 4 * time.Minute, want: true},
		{name: "just under five minutes", elapsed: ActiveWindow - time.Millisecond, want: true},
		{name: "exactly five minutes", elapsed: ActiveWindow, want: false},
		{name: "an hour", elapsed: time.Hour, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			reg := newTestRegistry(WithClock(clock.Now))
			require.True(t, reg.Validate(testID, "s3cr3t"))

			clock.Advance(tt.elapsed)
			stats, err := reg.Stats(testID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stats.IsActive)
		})
	}
}

func TestRegistry_Stats_NotFound(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Stats(testID)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestRegistry_RecordUpload(t *testing.T) {
	reg := newTestRegistry()

	reg.RecordUpload(testID) // unknown, no-op
	require.True(t, reg.Validate(testID, "s3cr3t"))
	reg.RecordUpload(testID)
	reg.RecordUpload(testID)

	stats, err := reg.Stats(testID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.UploadCount)
}

func TestRegistry_ListAll(t *testing.T) {
	reg := newTestRegistry()
	ids := []string{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		"cccccccccccccccccccccccccccccccc",
	}
	for _, id := range ids {
		require.True(t, reg.Validate(id, "key-"+id))
	}

	all := reg.ListAll()
	require.Len(t, all, len(ids))

	got := make([]string, 0, len(all))
	for _, s := range all {
		got = append(got, s.DeviceID)
	}
	assert.ElementsMatch(t, ids, got)
}

func TestRegistry_ConcurrentFirstValidate(t *testing.T) {
	reg := newTestRegistry()

	const workers = 50
	var wg sync.WaitGroup
	var accepted atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred := "s3cr3t"
			if i%2 == 1 {
				cred = "other"
			}
			if reg.Validate(testID, cred) {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Len())
	// only the credential that won registration is ever accepted
	assert.Equal(t, int64(workers/2), accepted.Load())
}

func TestRegistry_ConcurrentLastSeenIsMax(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	clock := func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}
	reg := newTestRegistry(WithClock(clock))
	require.True(t, reg.Validate(testID, "s3cr3t"))

	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Validate(testID, "s3cr3t")
		}()
	}
	wg.Wait()

	maxIssued := base.Add(time.Duration(ticks.Load()) * time.Millisecond)
	stats, err := reg.Stats(testID)
	require.NoError(t, err)
	assert.Equal(t, maxIssued, stats.LastSeen)
}
