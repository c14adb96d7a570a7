package health

import (
	"context"
	"errors"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func servingStatus(t *testing.T, c *Checker, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.GRPCServer().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("grpc health check: %v", err)
	}
	return resp.GetStatus()
}

func TestCheckerHealthy(t *testing.T) {
	c := NewChecker("1.0.0", Probe{Name: "database", Check: func(context.Context) error { return nil }})
	r := c.Check(context.Background())
	if r.Status != StatusHealthy || !r.Ready() {
		t.Fatalf("expected healthy, got %+v", r)
	}
	if got := servingStatus(t, c, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
}

func TestCheckerOptionalFailureDegrades(t *testing.T) {
	c := NewChecker("1.0.0",
		Probe{Name: "database", Check: func(context.Context) error { return nil }},
		Probe{Name: "redis", Optional: true, Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	)
	r := c.Check(context.Background())
	if r.Status != StatusDegraded || !r.Ready() {
		t.Fatalf("expected degraded but ready, got %+v", r)
	}
	if r.Dependencies["redis"].Message == "" {
		t.Fatalf("expected failure message for redis")
	}
	if got := servingStatus(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
}

func TestCheckerRequiredFailure(t *testing.T) {
	c := NewChecker("1.0.0", Probe{Name: "database", Check: func(context.Context) error { return errors.New("down") }})
	r := c.Check(context.Background())
	if r.Ready() || r.Dependencies["database"].Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %+v", r)
	}
	if got := servingStatus(t, c, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}
