package cache

import (
	"context"
	"time"
)

// Entry - закэшированное значение.
type Entry struct {
	Key      string
	Value    []byte
	StoredAt time.Time
	TTL      time.Duration
}

// Valid: запись жива, пока now < StoredAt + TTL.
func (e Entry) Valid(now time.Time) bool {
	return now.Before(e.StoredAt.Add(e.TTL))
}

// Store - бэкенд кэша. Просроченные записи должны считаться отсутствующими.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}
