// Package system сообщает о состоянии узла и пула соединений с базой.
package system

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"whstats/internal/core"
)

// PoolStatter отдает статистику пула соединений.
type PoolStatter interface {
	PoolStats() sql.DBStats
}

// Module предоставляет метрики узла и пула.
type Module struct {
	pool   PoolStatter
	schema func(ctx context.Context) string
}

// New создает модуль; pool и schema могут быть nil.
func New(pool PoolStatter, schema func(ctx context.Context) string) *Module {
	return &Module{pool: pool, schema: schema}
}

func (m *Module) Name() string { return "system" }

func (m *Module) Init(ctx context.Context) error { //nolint:revive // инициализация пока тривиальна
	return nil
}

func (m *Module) Commands() []string { return []string{"pool", "status"} }

func (m *Module) Execute(ctx context.Context, cmd string, args []string) (core.Response, error) {
	switch cmd {
	case "status":
		return m.status(ctx)
	case "pool":
		return core.OK(m.poolInfo(ctx)), nil
	default:
		err := fmt.Errorf("system %s: %w", cmd, core.ErrUnknownCommand)
		return core.Fail("unknown_command", "unknown command", err), err
	}
}

func (m *Module) status(ctx context.Context) (core.Response, error) {
	hInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return core.Fail("host_info_failed", "host info unavailable", err), fmt.Errorf("host info: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return core.Fail("mem_info_failed", "memory info unavailable", err), fmt.Errorf("memory info: %w", err)
	}
	ld, err := load.AvgWithContext(ctx)
	if err != nil {
		return core.Fail("load_info_failed", "load info unavailable", err), fmt.Errorf("load info: %w", err)
	}
	return core.OK(map[string]any{
		"hostname":     hInfo.Hostname,
		"platform":     hInfo.Platform,
		"kernel":       hInfo.KernelVersion,
		"uptime_sec":   hInfo.Uptime,
		"boot_time":    time.Unix(int64(hInfo.BootTime), 0).UTC().Format(time.RFC3339),
		"mem_total":    vm.Total,
		"mem_used_pct": vm.UsedPercent,
		"load1":        ld.Load1,
		"load5":        ld.Load5,
		"database":     m.poolInfo(ctx),
	}), nil
}

func (m *Module) poolInfo(ctx context.Context) map[string]any {
	info := map[string]any{"configured": m.pool != nil}
	if m.pool != nil {
		st := m.pool.PoolStats()
		info["max_open"] = st.MaxOpenConnections
		info["open"] = st.OpenConnections
		info["in_use"] = st.InUse
		info["idle"] = st.Idle
		info["wait_count"] = st.WaitCount
		info["wait_duration_ms"] = st.WaitDuration.Milliseconds()
	}
	if m.schema != nil {
		info["schema_mode"] = m.schema(ctx)
	}
	return info
}
