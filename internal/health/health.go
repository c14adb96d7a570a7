// Package health aggregates dependency probes for /readyz and the gRPC
// health service.
package health

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "estatecrm.api"

// Probe checks one dependency. Optional dependencies only degrade readiness.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// DependencyStatus is the result of one probe.
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the aggregated readiness view.
type Report struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// Ready is false only when a required dependency failed.
func (r Report) Ready() bool { return r.Status != StatusUnhealthy }

// Checker runs probes and mirrors the outcome into a gRPC health server.
type Checker struct {
	mu      sync.Mutex
	probes  []Probe
	version string
	grpc    *health.Server
	now     func() time.Time
}

// NewChecker builds a checker over probes.
func NewChecker(version string, probes ...Probe) *Checker {
	return &Checker{
		probes:  probes,
		version: version,
		grpc:    health.NewServer(),
		now:     time.Now,
	}
}

// GRPCServer is registered on the gRPC listener.
func (c *Checker) GRPCServer() *health.Server { return c.grpc }

// Check runs every probe and updates the gRPC serving status.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := Report{
		Status:       StatusHealthy,
		Timestamp:    c.now().UTC(),
		Version:      c.version,
		Dependencies: make(map[string]DependencyStatus, len(c.probes)),
	}
	for _, p := range c.probes {
		start := c.now()
		dep := DependencyStatus{Status: StatusHealthy}
		if err := p.Check(ctx); err != nil {
			dep.Message = err.Error()
			if p.Optional {
				dep.Status = StatusDegraded
				if report.Status == StatusHealthy {
					report.Status = StatusDegraded
				}
			} else {
				dep.Status = StatusUnhealthy
				report.Status = StatusUnhealthy
			}
		}
		dep.LatencyMS = c.now().Sub(start).Milliseconds()
		report.Dependencies[p.Name] = dep
	}

	serving := healthpb.HealthCheckResponse_SERVING
	if !report.Ready() {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.grpc.SetServingStatus("", serving)
	c.grpc.SetServingStatus(ServiceName, serving)
	return report
}

// Run re-checks every interval until ctx is done, then marks the service as
// not serving.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		c.Check(probeCtx)
		cancel()
		select {
		case <-ctx.Done():
			c.grpc.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
