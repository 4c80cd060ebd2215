package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job описывает периодическую задачу.
type Job func(ctx context.Context) error

type scheduledJob struct {
	name    string
	run     Job
	running atomic.Bool
}

// Scheduler запускает задачи с фиксированным интервалом. Запуск задачи
// пропускается, если предыдущий еще не завершился.
type Scheduler struct {
	interval   time.Duration
	log        *slog.Logger
	jobs       []*scheduledJob
	wg         sync.WaitGroup
	runOnStart bool
}

// NewScheduler создает scheduler с заданным интервалом.
func NewScheduler(interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{interval: interval, log: log}
}

// RunOnStart включает прогон всех задач сразу при старте.
func (s *Scheduler) RunOnStart(v bool) { s.runOnStart = v }

// Add добавляет задачу в расписание.
func (s *Scheduler) Add(name string, job Job) {
	s.jobs = append(s.jobs, &scheduledJob{name: name, run: job})
}

// Start запускает scheduler до отмены контекста.
func (s *Scheduler) Start(ctx context.Context) {
	if s.runOnStart {
		s.tick(ctx)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// RunOnce выполняет все задачи один раз и ждет их завершения.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick(ctx)
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, job := range s.jobs {
		if !job.running.CompareAndSwap(false, true) {
			s.log.Warn("scheduled job still running, skipping", "job", job.name)
			continue
		}
		s.wg.Add(1)
		go func(j *scheduledJob) {
			defer s.wg.Done()
			defer j.running.Store(false)
			start := time.Now()
			if err := j.run(ctx); err != nil {
				s.log.Error("scheduled job failed", "job", j.name, "err", err)
				return
			}
			s.log.Debug("scheduled job done", "job", j.name, "took", time.Since(start))
		}(job)
	}
}
