package entur

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vegardkv/travelpredict/snapshot"
)

func TestResolveWindowSameDay(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, oslo)

	start, end, err := resolveWindow(now, "06:00", "20:30")
	if err != nil {
		t.Fatalf("resolve window: %v", err)
	}
	if !start.Equal(time.Date(2025, 1, 6, 6, 0, 0, 0, oslo)) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(time.Date(2025, 1, 6, 20, 30, 0, 0, oslo)) {
		t.Fatalf("end = %v", end)
	}
}

func TestResolveWindowWrapsMidnight(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2025, 1, 6, 23, 0, 0, 0, oslo)

	start, end, err := resolveWindow(now, "22:00", "02:00")
	if err != nil {
		t.Fatalf("resolve window: %v", err)
	}
	if !start.Equal(time.Date(2025, 1, 6, 22, 0, 0, 0, oslo)) {
		t.Fatalf("start = %v", start)
	}
	// End lands on the following calendar day.
	if !end.Equal(time.Date(2025, 1, 7, 2, 0, 0, 0, oslo)) {
		t.Fatalf("end = %v", end)
	}
	if !end.After(start) {
		t.Fatal("wrapped window must end after it starts")
	}
}

func TestResolveWindowBadInput(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	if _, _, err := resolveWindow(now, "25:00", "12:00"); err == nil {
		t.Fatal("expected error for hour out of range")
	}
	if _, _, err := resolveWindow(now, "06:00", "noon"); err == nil {
		t.Fatal("expected error for malformed end time")
	}
}

func TestSchedulerRunOutsideWindow(t *testing.T) {
	cfg := testConfig("http://localhost:0")
	// A zero-length window at midnight is always already over.
	cfg.Collector.StartTime = "00:00"
	cfg.Collector.EndTime = "00:00"
	cfg.Storage.Snapshots.Dir = t.TempDir()
	cfg.Storage.Snapshots.ProcessedDir = t.TempDir()

	store, err := snapshot.NewStore(cfg.Storage.Snapshots.Dir, cfg.Storage.Snapshots.ProcessedDir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	sched, err := NewScheduler(cfg, NewClient(cfg), store)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Fetches != 0 || summary.Snapshots != 0 {
		t.Fatalf("expected idle run, got %+v", summary)
	}
	if summary.Session == "" {
		t.Fatal("summary missing session id")
	}
}

func TestSchedulerRunCancelledWhileWaiting(t *testing.T) {
	cfg := testConfig("http://localhost:0")
	// Wrapping window whose start is almost a day away keeps the loop in its
	// idle wait no matter when the test runs.
	cfg.Collector.StartTime = "23:59"
	cfg.Collector.EndTime = "23:58"
	cfg.Collector.IdlePoll = 10 * time.Millisecond
	cfg.Storage.Snapshots.Dir = t.TempDir()
	cfg.Storage.Snapshots.ProcessedDir = t.TempDir()

	store, err := snapshot.NewStore(cfg.Storage.Snapshots.Dir, cfg.Storage.Snapshots.ProcessedDir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	sched, err := NewScheduler(cfg, NewClient(cfg), store)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summary, err := sched.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if summary == nil || summary.Snapshots != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}
