package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"whstats/internal/app"
	"whstats/internal/config"
	"whstats/internal/transports/cli"
	"whstats/pkg/logger"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.New(buildVersion(), newRuntime)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// appRuntime связывает App с закрытием файла логов.
type appRuntime struct {
	*app.App
	logCloser interface{ Close() error }
}

func (r *appRuntime) Close() error {
	err := r.App.Close()
	if r.logCloser != nil {
		_ = r.logCloser.Close()
	}
	return err
}

func newRuntime(ctx context.Context, configPath string) (cli.Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	lg, closer := logger.New(logger.Options{
		Level:      cfg.Agent.LogLevel,
		Format:     cfg.Agent.LogFormat,
		File:       cfg.Agent.LogFile,
		MaxSizeMB:  cfg.Agent.LogMaxMB,
		MaxBackups: cfg.Agent.LogBackups,
		MaxAgeDays: cfg.Agent.LogMaxDays,
	})
	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	return &appRuntime{App: a, logCloser: closer}, nil
}

func buildVersion() string {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	if date != "" {
		v += " " + date
	}
	return v
}
