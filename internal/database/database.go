package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Rows - курсор результата; *sql.Rows удовлетворяет интерфейсу.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier выполняет читающие запросы.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Options задает параметры пула соединений.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DB - пул соединений Postgres.
type DB struct {
	pool *sql.DB
}

// Open нормализует DSN и настраивает пул. Соединение не проверяется.
func Open(dsn string, opts Options) (*DB, error) {
	pgDSN, err := normalizeDSN(dsn, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	pool, err := sql.Open("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 20
	}
	if opts.MaxIdleConns <= 0 || opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxIdleTime <= 0 {
		opts.ConnMaxIdleTime = 30 * time.Second
	}
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	return &DB{pool: pool}, nil
}

// Query реализует Querier поверх пула.
func (d *DB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := d.pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Ping проверяет доступность базы.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.PingContext(ctx)
}

// PoolStats возвращает статистику пула.
func (d *DB) PoolStats() sql.DBStats {
	return d.pool.Stats()
}

// SQL отдает нижележащий *sql.DB (интеграционные тесты, DDL).
func (d *DB) SQL() *sql.DB { return d.pool }

// Close закрывает пул.
func (d *DB) Close() error {
	return d.pool.Close()
}

// normalizeDSN принимает URL (postgres://, postgresql://) или key=value строку
// и проставляет connect_timeout, если он не задан явно.
func normalizeDSN(dsn string, connectTimeout time.Duration) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("empty dsn")
	}
	timeout := ""
	if connectTimeout > 0 {
		secs := int(connectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		timeout = strconv.Itoa(secs)
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		if u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
			return "", fmt.Errorf("incomplete dsn (host/db)")
		}
		q := u.Query()
		if timeout != "" && q.Get("connect_timeout") == "" {
			q.Set("connect_timeout", timeout)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	if !strings.Contains(dsn, "=") {
		return "", fmt.Errorf("unsupported dsn format")
	}
	if timeout != "" && !strings.Contains(dsn, "connect_timeout=") {
		dsn += " connect_timeout=" + timeout
	}
	return dsn, nil
}
