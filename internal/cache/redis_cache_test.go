package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestCacheManager_LocalSetGetDelete(t *testing.T) {
	cm := NewLocalCacheManager(slog.Default())
	assert.False(t, cm.IsAvailable())

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, cm.Set("k", payload{Name: "a", Count: 2}, time.Minute))

	var got payload
	found, err := cm.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	require.NoError(t, cm.Delete("k"))
	found, err = cm.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheManager_LocalIncrement(t *testing.T) {
	cm := NewLocalCacheManager(slog.Default())

	n, err := cm.Increment("counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = cm.Increment("counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestCacheManager_IncrementWithTTL(t *testing.T) {
	cm := NewLocalCacheManager(slog.Default())

	for want := int64(1); want <= 3; want++ {
		n, err := cm.IncrementWithTTL("bucket", 30*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	time.Sleep(50 * time.Millisecond)
	n, err := cm.IncrementWithTTL("bucket", 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCacheManager_PublishUpdateLocal(t *testing.T) {
	cm := NewLocalCacheManager(slog.Default())
	const id = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	var mu sync.Mutex
	var got []Update
	cm.OnUpdate(func(u Update) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})

	cm.PublishUpdate(Update{Action: ActionRecordsUploaded, DeviceID: id, Category: "sms", Count: 3})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].DeviceID)
	assert.Equal(t, "sms", got[0].Category)
	assert.Equal(t, 3, got[0].Count)
	assert.NotZero(t, got[0].Timestamp)
}

func TestCacheManager_RegistrationInvalidatesDeviceInfo(t *testing.T) {
	cm := NewLocalCacheManager(slog.Default())
	const id = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	require.NoError(t, cm.Set(KeyDeviceInfo(id), map[string]string{"uuid": "x"}, time.Minute))

	cm.PublishUpdate(Update{Action: ActionRecordsUploaded, DeviceID: id})
	var info map[string]string
	found, err := cm.Get(KeyDeviceInfo(id), &info)
	require.NoError(t, err)
	assert.True(t, found)

	cm.PublishUpdate(Update{Action: ActionDeviceRegistered, DeviceID: id})
	found, err = cm.Get(KeyDeviceInfo(id), &info)
	require.NoError(t, err)
	assert.False(t, found)
}
