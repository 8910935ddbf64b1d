package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error {
	return nil
}

// Keys lists stored keys. Order is unspecified.
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// RedisBackend stores each record as a plain string value under prefix+key.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// DefaultReadyInterval is the fixed backoff between WaitReady pings.
const DefaultReadyInterval = time.Second

// WaitReady blocks until the backend answers Ping, retrying forever at a fixed interval.
// It only gives up when ctx is done.
func WaitReady(ctx context.Context, b Backend, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReadyInterval
	}

	for attempt := 1; ; attempt++ {
		err := b.Ping(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Record store is reachable", zap.Int("attempts", attempt))
			}
			return nil
		}
		logger.Warn("Record store not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("interval", interval),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("record store not ready: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}
