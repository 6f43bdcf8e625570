// Package health checks the service's dependencies and runs periodic
// housekeeping such as purging expired session locks.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is how often Start runs checks and sweeps.
const DefaultInterval = time.Minute

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Sweep removes stale state and reports how many records it removed.
type Sweep func(ctx context.Context) (int64, error)

// Report is the outcome of one round of checks.
type Report struct {
	Healthy   bool              `json:"healthy"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Watchdog periodically checks the system health and runs sweeps.
type Watchdog struct {
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	checks map[string]Check
	sweeps map[string]Sweep
	last   *Report
}

// NewWatchdog creates a watchdog. A non-positive interval means DefaultInterval.
func NewWatchdog(interval time.Duration, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		interval: interval,
		logger:   logger.Named("health"),
		checks:   make(map[string]Check),
		sweeps:   make(map[string]Sweep),
	}
}

// AddCheck registers a named dependency check.
func (w *Watchdog) AddCheck(name string, c Check) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checks[name] = c
}

// AddSweep registers a named housekeeping task.
func (w *Watchdog) AddSweep(name string, s Sweep) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweeps[name] = s
}

// Check runs every check concurrently and records the report.
func (w *Watchdog) Check(ctx context.Context) Report {
	w.mu.RLock()
	checks := make(map[string]Check, len(w.checks))
	for name, c := range w.checks {
		checks[name] = c
	}
	w.mu.RUnlock()

	report := Report{Healthy: true, Checks: make(map[string]string, len(checks)), CheckedAt: time.Now()}
	var mu sync.Mutex
	var g errgroup.Group
	for name, c := range checks {
		g.Go(func() error {
			status := "ok"
			if err := c(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			report.Checks[name] = status
			if status != "ok" {
				report.Healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	w.mu.Lock()
	w.last = &report
	w.mu.Unlock()
	return report
}

// Healthy runs the checks and joins every failure into one error.
func (w *Watchdog) Healthy(ctx context.Context) error {
	report := w.Check(ctx)
	if report.Healthy {
		return nil
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if status := report.Checks[name]; status != "ok" {
			errs = append(errs, fmt.Errorf("%s: %s", name, status))
		}
	}
	return errors.Join(errs...)
}

// Last returns the most recent report, if any.
func (w *Watchdog) Last() (Report, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return Report{}, false
	}
	return *w.last, true
}

// Sweep runs every housekeeping task once.
func (w *Watchdog) Sweep(ctx context.Context) {
	w.mu.RLock()
	sweeps := make(map[string]Sweep, len(w.sweeps))
	for name, s := range w.sweeps {
		sweeps[name] = s
	}
	w.mu.RUnlock()

	for name, s := range sweeps {
		n, err := s(ctx)
		if err != nil {
			w.logger.Warn("sweep failed", zap.String("sweep", name), zap.Error(err))
			continue
		}
		if n > 0 {
			w.logger.Info("sweep removed records", zap.String("sweep", name), zap.Int64("removed", n))
		}
	}
}

// Start checks and sweeps every interval until ctx ends.
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
			if report := w.Check(ctx); !report.Healthy {
				w.logger.Warn("dependency check failed", zap.Any("checks", report.Checks))
			}
		case <-ctx.Done():
			return
		}
	}
}
