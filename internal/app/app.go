// Package app собирает зависимости whstats из конфигурации.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"whstats/internal/analytics"
	"whstats/internal/cache"
	"whstats/internal/config"
	"whstats/internal/core"
	"whstats/internal/database"
	"whstats/internal/modules/stats"
	"whstats/internal/modules/system"
	"whstats/internal/schema"
	"whstats/internal/storage"
	"whstats/internal/storage/sqlite"
	"whstats/internal/transports/common"
	"whstats/internal/transports/web"
)

// App агрегирует зависимости ядра.
type App struct {
	Registry   *core.Registry
	Transports *core.TransportManager
	Authorizer core.Authorizer
	Store      storage.Store
	Analytics  *analytics.Service
	Config     config.Config
	Log        *slog.Logger

	db       *database.DB
	cache    *cache.Cache
	resolver *schema.Resolver
	web      *web.Adapter
	cli      *common.Service
	closers  []io.Closer
}

// New строит приложение: пул базы, резолвер схемы, кэш, движок агрегаций,
// хранилище истории, реестр модулей и транспорты.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.db, err = database.Open(cfg.Database.DSN, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: time.Duration(cfg.Database.IdleTimeoutS) * time.Second,
		ConnectTimeout:  time.Duration(cfg.Database.ConnectTimeoutS) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, a.db)

	dialect := schema.NewDialect(cfg.Schema.Overrides)
	if mode, fixed := schema.ParseMode(cfg.Schema.Mode); fixed {
		a.resolver = schema.FixedResolver(mode, dialect)
	} else {
		a.resolver = schema.NewResolver(a.db, dialect, log)
	}
	exec := schema.NewExecutor(a.db, a.resolver, log)

	var backend cache.Store
	switch cfg.Cache.Backend {
	case "badger":
		bs, err := cache.OpenBadger(cfg.Cache.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		backend = bs
	default:
		backend = cache.NewMemoryStore()
	}
	a.cache = cache.New(backend, log)
	a.closers = append(a.closers, a.cache)

	a.Analytics = analytics.New(exec, a.cache, log, analytics.Options{
		DashboardTTL:      time.Duration(cfg.Cache.DashboardTTLSec) * time.Second,
		ComputeTimeout:    a.CommandTimeout(),
		LowStockThreshold: cfg.Analytics.LowStockThreshold,
	})

	st, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st)

	a.Registry = core.NewRegistry()
	if err := a.Registry.Register(ctx, stats.New(a.Analytics, st)); err != nil {
		return nil, fmt.Errorf("register stats module: %w", err)
	}
	if err := a.Registry.Register(ctx, system.New(a.db, a.schemaMode)); err != nil {
		return nil, fmt.Errorf("register system module: %w", err)
	}

	a.Authorizer = core.NewAllowlistAuthorizer(cfg.Security.AuthAllowlist)
	a.cli = &common.Service{
		Source:     "cli",
		Registry:   a.Registry,
		Authorizer: a.Authorizer,
		AuditSink:  st,
	}

	a.Transports = core.NewTransportManager()
	if cfg.Web.Enabled {
		tokens := make([]web.TokenEntry, 0, len(cfg.Web.Auth.Tokens))
		for _, token := range cfg.Web.Auth.Tokens {
			tokens = append(tokens, web.TokenEntry{
				ID:          token.ID,
				TokenSHA256: token.TokenSHA256,
				Subject:     token.Subject,
				Roles:       token.Roles,
				Enabled:     token.Enabled,
			})
		}
		a.web = web.NewAdapter(a.Registry, a.Authorizer, st, a.db.Ping, log, web.Config{
			ListenAddr:               cfg.Web.ListenAddr,
			ReadTimeout:              time.Duration(cfg.Web.ReadTimeoutMS) * time.Millisecond,
			WriteTimeout:             time.Duration(cfg.Web.WriteTimeoutMS) * time.Millisecond,
			RequestTimeout:           time.Duration(cfg.Web.RequestTimeoutMS) * time.Millisecond,
			ShutdownTimeout:          time.Duration(cfg.Web.ShutdownTimeoutS) * time.Second,
			RateLimit:                cfg.Web.RateLimit,
			RateWindow:               time.Duration(cfg.Web.RateWindowMS) * time.Millisecond,
			AllowLegacySubjectHeader: cfg.Web.Auth.AllowLegacySubjectHeader,
			Tokens:                   tokens,
			CORSAllowedOrigins:       cfg.Web.CORS.AllowedOrigins,
		})
		if err := a.Transports.Register(a.web); err != nil {
			return nil, fmt.Errorf("register web transport: %w", err)
		}
	}

	return a, nil
}

// Service отдает пайплайн команд CLI.
func (a *App) Service() *common.Service { return a.cli }

// CommandTimeout ограничивает одну команду CLI или задачу планировщика.
func (a *App) CommandTimeout() time.Duration {
	if ms := a.Config.Database.QueryTimeoutMS; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 10 * time.Second
}

// Close высвобождает ресурсы в обратном порядке открытия.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve запускает транспорты и планировщик до отмены контекста.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Transports.StartAll(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Transports.StopAll(stopCtx); err != nil {
			a.Log.Warn("stop transports", "err", err)
		}
	}()

	sched := a.newScheduler()
	a.Log.Info("whstats started", "transports", a.Transports.Names(), "schema_mode", a.Config.Schema.Mode)
	sched.Start(ctx)
	return ctx.Err()
}

func (a *App) newScheduler() *core.Scheduler {
	interval := time.Duration(a.Config.Scheduler.IntervalSeconds) * time.Second
	sched := core.NewScheduler(interval, a.Log)
	sched.RunOnStart(a.Config.Scheduler.WarmOnStart)

	sched.Add("dashboard-refresh", a.refreshDashboard)
	sched.Add("history-prune", a.pruneHistory)
	if a.web != nil {
		sched.Add("limiter-sweep", func(context.Context) error {
			if n := a.web.SweepLimiter(time.Now()); n > 0 {
				a.Log.Debug("rate limiter swept", "keys", n)
			}
			return nil
		})
	}
	return sched
}

// refreshDashboard пересобирает снимок в кэше и сохраняет его в историю.
// Несобранный снимок (таймаут, база недоступна) в историю не попадает.
func (a *App) refreshDashboard(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, a.CommandTimeout())
	defer cancel()

	snap, err := a.Analytics.RefreshDashboard(runCtx)
	if err != nil {
		return fmt.Errorf("refresh dashboard: %w", err)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	return a.Store.SaveSnapshot(ctx, storage.SnapshotRecord{
		Kind:     stats.SnapshotKind,
		Payload:  payload,
		Degraded: snap.Degraded,
	})
}

func (a *App) pruneHistory(ctx context.Context) error {
	days := a.Config.SQLite.RetentionDays
	if days <= 0 {
		return nil
	}
	n, err := a.Store.Prune(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if n > 0 {
		a.Log.Info("history pruned", "rows", n)
	}
	return nil
}

func (a *App) schemaMode(ctx context.Context) string {
	return a.resolver.Resolve(ctx).String()
}
