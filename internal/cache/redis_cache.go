package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/slog"
)

const updatesChannel = "device_updates"

const (
	ActionDeviceRegistered = "device_registered"
	ActionRecordsUploaded  = "records_uploaded"
)

// KeyDeviceInfo is the cache key for a device's directory row.
func KeyDeviceInfo(deviceID string) string {
	return fmt.Sprintf("device:%s", deviceID)
}

// Update is published when a device registers or uploads records.
type Update struct {
	Action    string `json:"action"`
	DeviceID  string `json:"device_id"`
	Category  string `json:"category,omitempty"`
	Count     int    `json:"count,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// CacheManager fronts Redis with a local go-cache. When Redis is unreachable
// at startup everything runs against the local cache only.
type CacheManager struct {
	redisClient *redis.Client
	localCache  *cache.Cache
	pubSub      *redis.PubSub
	ctx         context.Context
	mu          sync.RWMutex
	log         *slog.Logger

	handlersMu sync.RWMutex
	handlers   []func(Update)
}

// NewLocalCacheManager returns a manager without Redis.
func NewLocalCacheManager(log *slog.Logger) *CacheManager {
	return &CacheManager{
		ctx:        context.Background(),
		localCache: cache.New(5*time.Minute, 10*time.Minute),
		log:        log.With("component", "cache"),
	}
}

// NewCacheManager connects to redisURL, falling back to local-only mode if
// the server does not answer a ping.
func NewCacheManager(redisURL string, log *slog.Logger) *CacheManager {
	cm := NewLocalCacheManager(log)
	cm.initialize(redisURL)
	return cm
}

func (cm *CacheManager) initialize(redisURL string) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{
			Addr:     redisURL,
			Password: "",
			DB:       0,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cm.log.Warn("redis connection failed, using local cache only", "error", err)
		client.Close()
		return
	}

	cm.log.Info("redis connection established")
	cm.redisClient = client
	cm.pubSub = client.Subscribe(cm.ctx, updatesChannel)
	go cm.listenForUpdates()
}

func (cm *CacheManager) listenForUpdates() {
	if cm.pubSub == nil {
		return
	}

	ch := cm.pubSub.Channel()
	for msg := range ch {
		cm.handleUpdateMessage(msg.Payload)
	}
}

func (cm *CacheManager) handleUpdateMessage(payload string) {
	var update Update
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		cm.log.Warn("failed to parse update message", "error", err)
		return
	}

	if update.Action == ActionDeviceRegistered {
		cm.Delete(KeyDeviceInfo(update.DeviceID))
	}

	cm.handlersMu.RLock()
	handlers := cm.handlers
	cm.handlersMu.RUnlock()
	for _, h := range handlers {
		h(update)
	}
}

// OnUpdate registers fn to be called for every device update, whether it
// was published by this instance or another one sharing Redis.
func (cm *CacheManager) OnUpdate(fn func(Update)) {
	cm.handlersMu.Lock()
	cm.handlers = append(cm.handlers, fn)
	cm.handlersMu.Unlock()
}

func (cm *CacheManager) Set(key string, value interface{}, ttl time.Duration) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.localCache.Set(key, value, ttl)

	if cm.redisClient != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()

		return cm.redisClient.Set(ctx, key, data, ttl).Err()
	}

	return nil
}

func (cm *CacheManager) Get(key string, target interface{}) (bool, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if val, found := cm.localCache.Get(key); found {
		data, ok := val.([]byte)
		if !ok {
			var err error
			if data, err = json.Marshal(val); err != nil {
				return false, err
			}
		}
		return true, json.Unmarshal(data, target)
	}

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()

		data, err := cm.redisClient.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return false, nil
		} else if err != nil {
			return false, err
		}

		cm.localCache.Set(key, data, time.Minute)

		return true, json.Unmarshal(data, target)
	}

	return false, nil
}

func (cm *CacheManager) Delete(key string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.localCache.Delete(key)

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()
		return cm.redisClient.Del(ctx, key).Err()
	}

	return nil
}

func (cm *CacheManager) Increment(key string, value int64) (int64, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()
		return cm.redisClient.IncrBy(ctx, key, value).Result()
	}

	if n, err := cm.localCache.IncrementInt64(key, value); err == nil {
		return n, nil
	}
	cm.localCache.Set(key, value, cache.DefaultExpiration)
	return value, nil
}

// IncrementWithTTL increments key by one. A key created by this call expires
// after ttl; later increments keep the original expiry.
func (cm *CacheManager) IncrementWithTTL(key string, ttl time.Duration) (int64, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()

		n, err := cm.redisClient.IncrBy(ctx, key, 1).Result()
		if err != nil {
			return 0, err
		}
		if n == 1 {
			if err := cm.redisClient.Expire(ctx, key, ttl).Err(); err != nil {
				return 0, err
			}
		}
		return n, nil
	}

	if n, err := cm.localCache.IncrementInt64(key, 1); err == nil {
		return n, nil
	}
	cm.localCache.Set(key, int64(1), ttl)
	return 1, nil
}

// PublishUpdate announces update to every instance. Without Redis it is
// delivered to this instance's handlers directly.
func (cm *CacheManager) PublishUpdate(update Update) {
	if update.Timestamp == 0 {
		update.Timestamp = time.Now().Unix()
	}

	data, err := json.Marshal(update)
	if err != nil {
		cm.log.Error("failed to marshal update", "error", err)
		return
	}

	if cm.redisClient == nil {
		cm.handleUpdateMessage(string(data))
		return
	}

	ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
	defer cancel()

	if err := cm.redisClient.Publish(ctx, updatesChannel, data).Err(); err != nil {
		cm.log.Warn("failed to publish update", "error", err)
	}
}

func (cm *CacheManager) IsAvailable() bool {
	return cm.redisClient != nil
}

// Close releases the Redis subscription and connection.
func (cm *CacheManager) Close() error {
	if cm.pubSub != nil {
		cm.pubSub.Close()
	}
	if cm.redisClient != nil {
		return cm.redisClient.Close()
	}
	return nil
}
