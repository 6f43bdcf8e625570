package health

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdog_Check(t *testing.T) {
	w := NewWatchdog(0, nil)
	if err := w.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy() with no checks = %v, want nil", err)
	}

	w.AddCheck("database", func(context.Context) error { return nil })
	w.AddCheck("nats", func(context.Context) error { return errors.New("connection closed") })

	report := w.Check(context.Background())
	if report.Healthy {
		t.Error("report should be unhealthy")
	}
	if report.Checks["database"] != "ok" {
		t.Errorf("database = %q, want ok", report.Checks["database"])
	}
	if report.Checks["nats"] != "connection closed" {
		t.Errorf("nats = %q, want the error", report.Checks["nats"])
	}

	last, ok := w.Last()
	if !ok || last.Healthy {
		t.Errorf("Last() = %+v, %v; want the unhealthy report", last, ok)
	}

	err := w.Healthy(context.Background())
	if err == nil || !strings.Contains(err.Error(), "nats: connection closed") {
		t.Errorf("Healthy() = %v, want the nats failure", err)
	}
}

func TestWatchdog_Sweep(t *testing.T) {
	w := NewWatchdog(0, nil)
	var calls atomic.Int32
	w.AddSweep("locks", func(context.Context) (int64, error) {
		calls.Add(1)
		return 2, nil
	})
	w.AddSweep("broken", func(context.Context) (int64, error) { return 0, errors.New("boom") })

	w.Sweep(context.Background())
	if got := calls.Load(); got != 1 {
		t.Errorf("sweep ran %d times, want 1", got)
	}
}

func TestWatchdog_StartStopsWithContext(t *testing.T) {
	w := NewWatchdog(5*time.Millisecond, nil)
	var swept atomic.Int32
	w.AddSweep("locks", func(context.Context) (int64, error) {
		swept.Add(1)
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for swept.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep never ran")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
