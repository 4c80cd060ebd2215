// Package dbtest содержит подставные реализации database.Querier для тестов.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"whstats/internal/database"
)

// Call фиксирует выполненный запрос.
type Call struct {
	Query string
	Args  []any
}

// Responder формирует ответ на запрос.
type Responder func(query string, args []any) (database.Rows, error)

type route struct {
	match string
	fn    Responder
}

// Querier отвечает на запросы по первому совпавшему маршруту (подстрока SQL).
type Querier struct {
	mu     sync.Mutex
	routes []route
	calls  []Call
}

// On регистрирует ответ для запросов, содержащих substr.
func (q *Querier) On(substr string, fn Responder) *Querier {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.routes = append(q.routes, route{match: substr, fn: fn})
	return q
}

// Return - ответ с фиксированными строками.
func Return(rows ...[]any) Responder {
	return func(string, []any) (database.Rows, error) {
		return NewRows(rows...), nil
	}
}

// Fail - ответ с ошибкой.
func Fail(err error) Responder {
	return func(string, []any) (database.Rows, error) {
		return nil, err
	}
}

func (q *Querier) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	q.mu.Lock()
	q.calls = append(q.calls, Call{Query: query, Args: args})
	routes := append([]route(nil), q.routes...)
	q.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range routes {
		if strings.Contains(query, r.match) {
			return r.fn(query, args)
		}
	}
	return nil, fmt.Errorf("dbtest: unexpected query: %s", query)
}

// Calls возвращает копию журнала запросов.
func (q *Querier) Calls() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Call(nil), q.calls...)
}

// Rows - курсор по заранее заданным значениям.
type Rows struct {
	data   [][]any
	pos    int
	closed bool
}

// NewRows создает курсор; каждый элемент - значения одной строки.
func NewRows(rows ...[]any) *Rows {
	return &Rows{data: rows}
}

func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.data) {
		return fmt.Errorf("dbtest: scan without row")
	}
	row := r.data[r.pos-1]
	if len(row) != len(dest) {
		return fmt.Errorf("dbtest: expected %d destinations, got %d", len(row), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], row[i]); err != nil {
			return fmt.Errorf("dbtest: column %d: %w", i, err)
		}
	}
	return nil
}

func (r *Rows) Err() error { return nil }

func (r *Rows) Close() error {
	r.closed = true
	return nil
}

// Closed сообщает, закрыл ли потребитель курсор.
func (r *Rows) Closed() bool { return r.closed }

func assign(dest, src any) error {
	if sc, ok := dest.(sql.Scanner); ok {
		return sc.Scan(src)
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer")
	}
	ev := dv.Elem()
	if src == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(ev.Type()):
		ev.Set(sv)
	case sv.Type().ConvertibleTo(ev.Type()):
		ev.Set(sv.Convert(ev.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", src, ev.Type())
	}
	return nil
}
