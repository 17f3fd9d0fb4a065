// Package health runs readiness checks against the service's backing stores.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	defaultTimeout = 5 * time.Second
)

// Checker reports whether a dependency is reachable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a ping function to Checker.
type CheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// Report is the outcome of one readiness probe.
type Report struct {
	Healthy   bool              `json:"-"`
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Probe runs a fixed set of named checkers concurrently.
type Probe struct {
	checkers map[string]Checker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProbe creates a probe. Nil checkers are skipped.
func NewProbe(checkers map[string]Checker, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	active := make(map[string]Checker, len(checkers))
	for name, c := range checkers {
		if c != nil {
			active[name] = c
		}
	}
	return &Probe{checkers: active, timeout: defaultTimeout, logger: logger}
}

// Names returns the registered check names, sorted.
func (p *Probe) Names() []string {
	names := make([]string, 0, len(p.checkers))
	for name := range p.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every checker with a shared timeout.
func (p *Probe) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(p.checkers))
	)
	for name, c := range p.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := StatusOK
			if err := c.HealthCheck(ctx); err != nil {
				result = StatusError
				p.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	report := Report{
		Healthy:   true,
		Status:    "healthy",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, result := range checks {
		if result != StatusOK {
			report.Healthy = false
			report.Status = "unhealthy"
			break
		}
	}
	return report
}
