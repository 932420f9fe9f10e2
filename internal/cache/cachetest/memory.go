// Package cachetest provides an in-memory cache.Cache for tests.
package cachetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/cache"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is a goroutine-safe in-memory cache honouring TTLs.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

var _ cache.Cache = (*Memory)(nil)

func New() *Memory {
	return &Memory{entries: map[string]entry{}, now: time.Now}
}

func (m *Memory) get(key string) ([]byte, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.get(key)
	return v, ok, nil
}

func (m *Memory) Take(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.get(key)
	delete(m.entries, key)
	return v, ok, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) SetImportStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return m.Set(ctx, cache.ImportStatusKey(jobID), []byte(status), ttl)
}

func (m *Memory) GetImportStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	v, ok, err := m.Get(ctx, cache.ImportStatusKey(jobID))
	return string(v), ok, err
}

func (m *Memory) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if v, ok := m.get(key); ok {
		for _, c := range v {
			n = n*10 + int64(c-'0')
		}
	}
	n++
	e := entry{value: []byte(formatInt(n))}
	if old, ok := m.entries[key]; ok && !old.expires.IsZero() {
		e.expires = old.expires
	} else if expiry > 0 {
		e.expires = m.now().Add(expiry)
	}
	m.entries[key] = e
	return n, nil
}

func formatInt(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
