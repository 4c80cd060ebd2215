// Package storage хранит историю снимков дашборда и журнал аудита.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound - запись не найдена.
var ErrNotFound = errors.New("record not found")

// SnapshotRecord - сохраненный снимок агрегатов.
type SnapshotRecord struct {
	ID       int64
	Kind     string
	Payload  []byte
	Degraded []string
	TS       time.Time
}

// AuditEvent фиксирует обращения к транспортам.
type AuditEvent struct {
	Subject   string
	Action    string
	Source    string
	Status    string
	RequestID string
	Payload   []byte
	TS        time.Time
}

// AuditQuery задает фильтры выборки аудита.
type AuditQuery struct {
	From    time.Time
	To      time.Time
	Subject string
	Limit   int
}

// Store описывает операции хранилища.
type Store interface {
	SaveSnapshot(ctx context.Context, rec SnapshotRecord) error
	LatestSnapshot(ctx context.Context, kind string) (SnapshotRecord, error)
	ListSnapshots(ctx context.Context, kind string, limit int) ([]SnapshotRecord, error)
	SaveAudit(ctx context.Context, ev AuditEvent) error
	QueryAudit(ctx context.Context, q AuditQuery) ([]AuditEvent, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
