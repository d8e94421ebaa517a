package metrics

import (
	"testing"
	"time"
)

func resetHealthChecker() {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("hostdir:default", true, "running")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components["hostdir:default"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}
	if comp.Message != "running" {
		t.Errorf("expected message 'running', got '%s'", comp.Message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealthChecker()
	SetVersion("1.0.0")

	RegisterComponent("hostdir:default", true, "")
	RegisterComponent("blockfile:nodes", true, "")

	health := GetHealth()
	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}
	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}
	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("hostdir:default", true, "")
	RegisterComponent("blockfile:nodes", false, "commit failed")

	health := GetHealth()
	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
	if health.Components["blockfile:nodes"] != "unhealthy: commit failed" {
		t.Errorf("unexpected component detail: %s", health.Components["blockfile:nodes"])
	}
}

func TestUpdateComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("test", true, "ok")
	UpdateComponent("test", false, "error")

	comp := healthChecker.components["test"]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}
	if comp.Message != "error" {
		t.Errorf("expected message 'error', got '%s'", comp.Message)
	}
}

func TestGetHealthUptime(t *testing.T) {
	resetHealthChecker()

	health := GetHealth()
	if health.Uptime == "" {
		t.Error("expected non-empty uptime string")
	}
	if health.StartTime.IsZero() {
		t.Error("expected non-zero start time")
	}
}
