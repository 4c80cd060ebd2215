package schema

import (
	"context"
	"log/slog"
	"sync"

	"whstats/internal/database"
)

const probeQuery Query = `SELECT 1 FROM {orders} LIMIT 1`

// Resolver один раз определяет соглашение об именах живой базы.
type Resolver struct {
	q       database.Querier
	dialect Dialect
	log     *slog.Logger

	mu       sync.Mutex
	resolved bool
	mode     Mode
}

// NewResolver создает резолвер с автоопределением.
func NewResolver(q database.Querier, dialect Dialect, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{q: q, dialect: dialect, log: log}
}

// FixedResolver возвращает резолвер с заранее известным режимом (без проб).
func FixedResolver(mode Mode, dialect Dialect) *Resolver {
	return &Resolver{dialect: dialect, log: slog.Default(), resolved: true, mode: mode}
}

// Dialect возвращает диалект, с которым работает резолвер.
func (r *Resolver) Dialect() Dialect { return r.dialect }

// Resolve возвращает режим; первая успешная проба запоминается навсегда.
// Параллельные вызовы до разрешения могут пробовать одновременно: пробы
// только читают и дают одинаковый результат.
func (r *Resolver) Resolve(ctx context.Context) Mode {
	r.mu.Lock()
	if r.resolved {
		mode := r.mode
		r.mu.Unlock()
		return mode
	}
	r.mu.Unlock()

	mode, final := r.detect(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.mode
	}
	if final {
		r.mode = mode
		r.resolved = true
	}
	return mode
}

// detect пробует Primary, затем Secondary. final=false означает, что решение
// не стоит запоминать: хотя бы одна проба упала не из-за схемы (база недоступна).
func (r *Resolver) detect(ctx context.Context) (Mode, bool) {
	primaryErr := r.probe(ctx, Primary)
	if primaryErr == nil {
		r.log.Info("schema resolved", "mode", Primary.String())
		return Primary, true
	}
	if !IsSchemaMismatch(primaryErr) {
		r.log.Warn("schema probe failed, using primary naming", "err", primaryErr)
		return Primary, false
	}

	secondaryErr := r.probe(ctx, Secondary)
	if secondaryErr == nil {
		r.log.Info("schema resolved", "mode", Secondary.String())
		return Secondary, true
	}
	r.log.Warn("schema probes failed for both naming conventions, using primary",
		"primary_err", primaryErr, "secondary_err", secondaryErr)
	return Primary, IsSchemaMismatch(secondaryErr)
}

func (r *Resolver) probe(ctx context.Context, mode Mode) error {
	rows, err := r.q.Query(ctx, r.dialect.Render(mode, probeQuery))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}
