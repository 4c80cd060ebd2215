package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore хранит записи в памяти процесса. Фоновой очистки нет:
// просроченная запись удаляется при следующем чтении.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// MemoryOption настраивает MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock подменяет часы (тесты).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore создает пустое хранилище.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{entries: make(map[string]Entry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	now := m.now()
	m.mu.RLock()
	ent, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !ent.Valid(now) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && !cur.Valid(now) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return ent.Value, true, nil
}

// Set полностью заменяет запись. ttl <= 0 ничего не сохраняет.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[key] = Entry{Key: key, Value: value, StoredAt: m.now(), TTL: ttl}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len возвращает число записей, включая еще не вычищенные просроченные.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error { return nil }
