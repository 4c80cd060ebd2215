// Package web - HTTP JSON API поверх реестра модулей.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whstats/internal/core"
	"whstats/internal/storage"
	"whstats/internal/transports/common"
)

// TokenEntry описывает web bearer-токен.
type TokenEntry struct {
	ID          string
	TokenSHA256 string
	Subject     string
	Roles       []string
	Enabled     bool
}

// Config определяет параметры HTTP-транспорта.
type Config struct {
	ListenAddr               string
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	ShutdownTimeout          time.Duration
	RequestTimeout           time.Duration
	MaxRequestBody           int64
	RateLimit                int
	RateWindow               time.Duration
	AllowLegacySubjectHeader bool
	Tokens                   []TokenEntry
	CORSAllowedOrigins       []string
}

// HealthFunc проверяет доступность зависимостей.
type HealthFunc func(ctx context.Context) error

// Adapter реализует web transport поверх net/http.
type Adapter struct {
	registry   *core.Registry
	authorizer core.Authorizer
	store      storage.Store
	limiter    *common.RateLimiter
	health     HealthFunc
	log        *slog.Logger
	cfg        Config

	tokensByHash map[string]TokenEntry
	corsOrigins  map[string]struct{}

	mu     sync.Mutex
	server *http.Server
}

// NewAdapter создает web transport. health может быть nil.
func NewAdapter(registry *core.Registry, authorizer core.Authorizer, store storage.Store, health HealthFunc, log *slog.Logger, cfg Config) *Adapter {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 1 << 20
	}
	if log == nil {
		log = slog.Default()
	}

	tokensByHash := make(map[string]TokenEntry, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		h := strings.ToLower(strings.TrimSpace(token.TokenSHA256))
		if len(h) != 64 {
			continue
		}
		tokensByHash[h] = token
	}
	corsOrigins := make(map[string]struct{}, len(cfg.CORSAllowedOrigins))
	for _, origin := range cfg.CORSAllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			corsOrigins[trimmed] = struct{}{}
		}
	}

	var limiter *common.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = common.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}

	return &Adapter{
		registry:     registry,
		authorizer:   authorizer,
		store:        store,
		limiter:      limiter,
		health:       health,
		log:          log,
		cfg:          cfg,
		tokensByHash: tokensByHash,
		corsOrigins:  corsOrigins,
	}
}

func (a *Adapter) Name() string { return "web" }

// Start запускает HTTP server и останавливает его при отмене контекста.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.server != nil {
		a.mu.Unlock()
		return errors.New("web transport already started")
	}
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.routes(),
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
	}
	a.server = srv
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()

	go func() {
		a.log.Info("web transport listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("web transport failed", "err", err)
			_ = a.writeAudit(context.Background(), "", "web:serve", "error", map[string]string{"error": err.Error()}, "")
		}
	}()
	return nil
}

// Stop завершает HTTP server.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (a *Adapter) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/health", http.HandlerFunc(a.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())

	protected := func(h http.HandlerFunc, mws ...middleware) http.Handler {
		base := []middleware{a.timeoutMiddleware(), a.authSubjectMiddleware(), a.rateLimitMiddleware()}
		return chain(h, append(base, mws...)...)
	}

	mux.Handle("GET /v1/", protected(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found")
	}))
	mux.Handle("GET /v1/me", protected(a.handleMe))
	mux.Handle("GET /v1/modules", protected(a.handleModules,
		a.authorizeActionMiddleware("web:modules", core.Action{Module: "web", Command: "modules"})))
	mux.Handle("GET /v1/stats/{command}", protected(a.handleStats, a.authorizeStatsMiddleware()))
	mux.Handle("POST /v1/commands/execute", protected(a.handleExecute,
		a.maxBodyMiddleware(), a.authorizeExecuteMiddleware()))
	mux.Handle("GET /v1/snapshots/latest", protected(a.handleLatestSnapshot,
		a.authorizeActionMiddleware("web:snapshots_latest", core.Action{Module: "stats", Command: "history"})))
	mux.Handle("GET /v1/audit", protected(a.handleAudit,
		a.authorizeActionMiddleware("web:audit_query", core.Action{Module: "audit", Command: "read"})))

	return chain(mux, a.requestIDMiddleware(), a.corsMiddleware())
}

// SweepLimiter освобождает ключи лимитера без активности.
func (a *Adapter) SweepLimiter(now time.Time) int {
	if a.limiter == nil {
		return 0
	}
	return a.limiter.Sweep(now)
}
