// Package health aggregates liveness checks of this service and the systems it depends on into one report.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

const DefaultTimeout = 5 * time.Second

// Returns the status of one component, with an optional short message.
type Probe func(ctx context.Context) (Status, string)

type Check struct {
	Name string
	// Zero means DefaultTimeout
	Timeout time.Duration
	Probe   Probe
	// The service cannot answer requests while this check fails.
	Critical bool
}

type Component struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

type Report struct {
	Status     Status               `json:"status"`
	Daemon     string               `json:"daemon"`
	Version    string               `json:"version"`
	Components map[string]Component `json:"components"`
}

type Aggregator struct {
	Daemon  string
	Version string
	Checks  []Check
}

// Runs all checks concurrently, each under its own timeout.
//
// Overall status is "error" when a critical component fails, "ok" when every component is ok, and "degraded" otherwise.
func (a *Aggregator) Run(ctx context.Context) *Report {
	results := make([]Component, len(a.Checks))

	var g errgroup.Group
	for i, c := range a.Checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Daemon:     a.Daemon,
		Version:    a.Version,
		Components: make(map[string]Component, len(a.Checks)),
	}
	okCount, criticalFailed := 0, false
	for i, c := range a.Checks {
		report.Components[c.Name] = results[i]
		switch results[i].Status {
		case StatusOK:
			okCount++
		case StatusError:
			criticalFailed = criticalFailed || c.Critical
		}
		componentUp.WithLabelValues(c.Name).Set(boolFloat(results[i].Status == StatusOK))
	}

	switch {
	case criticalFailed:
		report.Status = StatusError
	case okCount == len(a.Checks):
		report.Status = StatusOK
	default:
		report.Status = StatusDegraded
	}
	return report
}

func runCheck(ctx context.Context, c Check) Component {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	status, msg := c.Probe(ctx)
	if ctx.Err() != nil && status != StatusOK {
		msg = "timed out after " + timeout.String()
	}
	return Component{
		Status:    status,
		Message:   msg,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
