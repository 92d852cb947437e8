package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mediagallery/gallery-api/internal/observability"
)

type CheckResult struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
}

const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusUnready  = "unready"
)

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner answers the readiness probe. Checks run concurrently, each with
// its own timeout, and results keep registration order.
type ProbeRunner struct {
	checkers    []Checker
	timeout     time.Duration
	gracePeriod time.Duration
	startedAt   time.Time
	now         func() time.Time
}

func NewProbeRunner(timeout, gracePeriod time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	active := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			active = append(active, c)
		}
	}
	return &ProbeRunner{
		checkers:    active,
		timeout:     timeout,
		gracePeriod: gracePeriod,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

// Ready reports whether every critical dependency is healthy.
func (r *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	status, results := r.Status(ctx)
	return status != StatusUnready, results
}

// Status is ready, degraded (a non-critical dependency is down) or unready.
func (r *ProbeRunner) Status(ctx context.Context) (string, []CheckResult) {
	if r == nil {
		return StatusReady, nil
	}
	if r.gracePeriod > 0 && r.now().Sub(r.startedAt) < r.gracePeriod {
		observability.RecordHealthCheckResult(ctx, "startup_grace", StatusUnready)
		return StatusUnready, []CheckResult{{Name: "startup_grace", Critical: true, Error: "startup grace period active"}}
	}

	results := make([]CheckResult, len(r.checkers))
	var g errgroup.Group
	for i, c := range r.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			start := time.Now()
			results[i] = c.Check(checkCtx)
			observability.RecordHealthCheckDuration(ctx, results[i].Name, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	status := StatusReady
	for _, res := range results {
		switch {
		case res.Healthy:
			observability.RecordHealthCheckResult(ctx, res.Name, StatusReady)
			continue
		case res.Critical:
			status = StatusUnready
		case status == StatusReady:
			status = StatusDegraded
		}
		observability.RecordHealthCheckResult(ctx, res.Name, StatusUnready)
	}
	return status, results
}
