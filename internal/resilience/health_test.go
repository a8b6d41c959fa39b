package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHealthCheckerAggregates(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthCheck
		want   HealthStatus
	}{
		{"no components", nil, HealthStatusUnknown},
		{
			"all healthy",
			map[string]HealthCheck{
				"storage": StorageHealthCheck(func(context.Context) error { return nil }),
				"source":  APIHealthCheck(func(context.Context) error { return nil }),
			},
			HealthStatusHealthy,
		},
		{
			"one unhealthy",
			map[string]HealthCheck{
				"storage": StorageHealthCheck(func(context.Context) error { return nil }),
				"source":  APIHealthCheck(func(context.Context) error { return errors.New("connection refused") }),
			},
			HealthStatusUnhealthy,
		},
		{
			"slow storage",
			map[string]HealthCheck{
				"storage": StorageHealthCheck(func(context.Context) error {
					time.Sleep(150 * time.Millisecond)
					return nil
				}),
			},
			HealthStatusDegraded,
		},
		{
			"panicking check",
			map[string]HealthCheck{
				"broken": func(context.Context) ComponentHealth { panic("boom") },
			},
			HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(time.Second)
			for name, check := range tt.checks {
				h.RegisterComponent(name, check)
			}
			got := h.Check(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %s, want %s (%+v)", got.Status, tt.want, got.Components)
			}
			if len(got.Components) != len(tt.checks) {
				t.Errorf("components = %d, want %d", len(got.Components), len(tt.checks))
			}
			for _, c := range got.Components {
				if c.Name == "" || c.LastCheck.IsZero() {
					t.Errorf("component not stamped: %+v", c)
				}
			}
		})
	}
}

func TestBreakerHealthCheck(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	check := BreakerHealthCheck(cb)

	if got := check(context.Background()); got.Status != HealthStatusHealthy {
		t.Errorf("closed breaker = %s", got.Status)
	}

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	if got := check(context.Background()); got.Status != HealthStatusUnhealthy {
		t.Errorf("open breaker = %s", got.Status)
	}
}
