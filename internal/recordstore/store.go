// Package recordstore serializes access to named JSON records.
//
// Every key owns a chain of completion channels. An operation appends itself as the
// new tail, waits for its predecessor to settle, runs, then closes its own channel.
// Operations on the same key therefore run in submission order and never interleave;
// operations on different keys are independent. A failing operation reports its error
// only to its own caller; the next operation on the key runs regardless.
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("record not found")

// Backend is an opaque keyed document store.
type Backend interface {
	// Get returns ErrNotFound when the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
}

type Store struct {
	backend Backend

	mu    sync.Mutex
	tails map[string]chan struct{}
}

func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		tails:   make(map[string]chan struct{}),
	}
}

func (s *Store) Backend() Backend {
	return s.backend
}

// run executes op in key's queue slot.
func (s *Store) run(ctx context.Context, key string, op func(ctx context.Context) error) error {
	done := make(chan struct{})

	s.mu.Lock()
	prev := s.tails[key]
	s.tails[key] = done
	s.mu.Unlock()

	release := func() {
		close(done)
		s.mu.Lock()
		if s.tails[key] == done {
			delete(s.tails, key)
		}
		s.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// 後続のためにチェーンは維持する
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}
	defer release()

	if err := op(ctx); err != nil {
		logger.Warn("Record operation failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// pending reports how many keys currently have a queued or running operation.
func (s *Store) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}

// Read returns the record at key, creating it from seed on first access.
// For struct and map seeds the stored fields are merged over the seed's fields,
// so records written before a field existed pick up its default. Slice seeds are
// only used when the record is missing.
func Read[T any](ctx context.Context, s *Store, key string, seed T) (T, error) {
	var out T
	err := s.run(ctx, key, func(ctx context.Context) error {
		v, err := load(ctx, s.backend, key, seed)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Write replaces the record at key.
func Write[T any](ctx context.Context, s *Store, key string, value T) error {
	return s.run(ctx, key, func(ctx context.Context) error {
		return save(ctx, s.backend, key, value)
	})
}

// Update reads, modifies and writes the record inside one queue slot.
// When fn returns an error nothing is written.
func Update[T any](ctx context.Context, s *Store, key string, seed T, fn func(T) (T, error)) (T, error) {
	var out T
	err := s.run(ctx, key, func(ctx context.Context) error {
		cur, err := load(ctx, s.backend, key, seed)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if err := save(ctx, s.backend, key, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func load[T any](ctx context.Context, b Backend, key string, seed T) (T, error) {
	var zero T

	raw, err := b.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		data, err := json.Marshal(seed)
		if err != nil {
			return zero, fmt.Errorf("failed to encode seed for %s: %w", key, err)
		}
		if err := b.Put(ctx, key, data); err != nil {
			return zero, fmt.Errorf("failed to seed record %s: %w", key, err)
		}
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return zero, fmt.Errorf("failed to copy seed for %s: %w", key, err)
		}
		return out, nil
	}
	if err != nil {
		return zero, fmt.Errorf("failed to read record %s: %w", key, err)
	}

	var out T
	if isObject(seed) {
		base, err := json.Marshal(seed)
		if err != nil {
			return zero, fmt.Errorf("failed to encode seed for %s: %w", key, err)
		}
		if err := json.Unmarshal(base, &out); err != nil {
			return zero, fmt.Errorf("failed to copy seed for %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return out, nil
}

func save[T any](ctx context.Context, b Backend, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}
	if err := b.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	return nil
}

func isObject(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct || t.Kind() == reflect.Map
}
