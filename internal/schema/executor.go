package schema

import (
	"context"
	"log/slog"

	"whstats/internal/database"
	"whstats/internal/telemetry"
)

// Executor выполняет читающие запросы с откатом на альтернативные имена.
// Для записи не используется.
type Executor struct {
	q        database.Querier
	resolver *Resolver
	log      *slog.Logger
}

// NewExecutor создает исполнитель поверх пула и резолвера.
func NewExecutor(q database.Querier, resolver *Resolver, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{q: q, resolver: resolver, log: log}
}

// Query рендерит шаблон под определенный режим (основная попытка) и под
// альтернативный (откат) и выполняет ExecuteWithFallback.
func (e *Executor) Query(ctx context.Context, q Query, args ...any) (database.Rows, error) {
	mode := e.resolver.Resolve(ctx)
	d := e.resolver.Dialect()
	return e.ExecuteWithFallback(ctx, d.Render(mode, q), d.Render(mode.Alternate(), q), args...)
}

// ExecuteWithFallback всегда начинает с primarySQL. Повтор с secondarySQL
// выполняется один раз и только при несовпадении схемы; если он тоже падает,
// вызывающий получает исходную ошибку.
func (e *Executor) ExecuteWithFallback(ctx context.Context, primarySQL, secondarySQL string, args ...any) (database.Rows, error) {
	rows, err := e.q.Query(ctx, primarySQL, args...)
	if err == nil {
		return rows, nil
	}
	if !IsSchemaMismatch(err) || secondarySQL == "" || secondarySQL == primarySQL {
		return nil, err
	}

	rows, altErr := e.q.Query(ctx, secondarySQL, args...)
	if altErr != nil {
		telemetry.SchemaFallback.WithLabelValues("failed").Inc()
		e.log.Debug("schema fallback failed", "err", err, "fallback_err", altErr)
		return nil, err
	}
	telemetry.SchemaFallback.WithLabelValues("recovered").Inc()
	e.log.Debug("schema fallback recovered", "err", err)
	return rows, nil
}
