package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"whstats/internal/analytics"
	"whstats/internal/config"
	"whstats/internal/modules/stats"
	"whstats/internal/storage"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	// порт 1 закрыт: запросы к базе падают сразу
	cfg.Database.DSN = "postgres://whstats@127.0.0.1:1/whstats?sslmode=disable"
	cfg.Database.ConnectTimeoutS = 1
	cfg.Database.QueryTimeoutMS = 3000
	cfg.Schema.Mode = "primary"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "state.db")
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewRegistersModules(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	got := a.Registry.Providers()
	if len(got) != 2 || got[0] != "stats" || got[1] != "system" {
		t.Fatalf("unexpected providers: %v", got)
	}
	if len(a.Transports.Names()) != 0 {
		t.Fatalf("web is disabled by default, got %v", a.Transports.Names())
	}
	if a.CommandTimeout() != 3*time.Second {
		t.Fatalf("unexpected command timeout %v", a.CommandTimeout())
	}
}

func TestNewRegistersWebWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Web.Enabled = true
	a := newTestApp(t, cfg)
	if names := a.Transports.Names(); len(names) != 1 || names[0] != "web" {
		t.Fatalf("unexpected transports: %v", names)
	}
}

func TestNewRejectsBadDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DSN = "not a dsn"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for bad dsn")
	}
}

func TestRefreshWithUnreachableDatabaseStoresNothing(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	err := a.refreshDashboard(ctx)
	if !errors.Is(err, analytics.ErrNotConfigured) {
		t.Fatalf("expected unreachable database error, got %v", err)
	}
	if _, err := a.Store.LatestSnapshot(ctx, stats.SnapshotKind); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("no snapshot must be persisted, got %v", err)
	}
}

func TestRefreshTimedOutStoresNothing(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if err := a.refreshDashboard(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if _, err := a.Store.LatestSnapshot(context.Background(), stats.SnapshotKind); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("no snapshot must be persisted, got %v", err)
	}
}

func TestPruneHistory(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()
	if err := a.Store.SaveSnapshot(ctx, storage.SnapshotRecord{Kind: stats.SnapshotKind, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := a.pruneHistory(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := a.Store.LatestSnapshot(ctx, stats.SnapshotKind); err != nil {
		t.Fatalf("fresh snapshot must survive pruning: %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.WarmOnStart = false
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}
