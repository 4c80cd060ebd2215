package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerRunsJobs(t *testing.T) {
	var count int32
	sched := NewScheduler(10*time.Millisecond, quietLogger())
	sched.Add("count", func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sched.Start(ctx)
	if c := atomic.LoadInt32(&count); c == 0 {
		t.Fatalf("expected jobs to run, got %d", c)
	}
}

func TestSchedulerRunOnStart(t *testing.T) {
	var count int32
	sched := NewScheduler(time.Hour, quietLogger())
	sched.RunOnStart(true)
	sched.Add("count", func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sched.Start(ctx)
	if c := atomic.LoadInt32(&count); c != 1 {
		t.Fatalf("expected one immediate run, got %d", c)
	}
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	var count int32
	release := make(chan struct{})
	sched := NewScheduler(time.Hour, quietLogger())
	sched.Add("slow", func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		<-release
		return nil
	})

	ctx := context.Background()
	sched.tick(ctx)
	sched.tick(ctx)
	close(release)
	sched.wg.Wait()

	if c := atomic.LoadInt32(&count); c != 1 {
		t.Fatalf("expected overlapping run to be skipped, got %d runs", c)
	}
}

func TestSchedulerRunOnceSurvivesFailingJob(t *testing.T) {
	var ok int32
	sched := NewScheduler(time.Minute, quietLogger())
	sched.Add("fail", func(ctx context.Context) error { return errors.New("boom") })
	sched.Add("ok", func(ctx context.Context) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})

	sched.RunOnce(context.Background())
	if atomic.LoadInt32(&ok) != 1 {
		t.Fatalf("healthy job must run despite sibling failure")
	}
}
