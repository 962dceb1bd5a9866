// Package cachetest provides an in-memory cache.KV for tests.
package cachetest

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/opengaia-backend/internal/data/cache"
)

type MemKV struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
	Err  error
}

func NewMemKV() *MemKV {
	return &MemKV{data: map[string][]byte{}}
}

func (m *MemKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	b, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return append([]byte(nil), b...), nil
}

func (m *MemKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.data[key] = append([]byte(nil), value...)
	m.sets++
	return nil
}

// Sets returns how many successful writes happened.
func (m *MemKV) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}
