package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %s, want /metrics", cfg.MetricsPath)
	}
	if cfg.HealthPath != "/health" {
		t.Errorf("HealthPath = %s, want /health", cfg.HealthPath)
	}
}

func TestNewServer_AppliesDefaults(t *testing.T) {
	server := NewServer(ServerConfig{}, nil)

	if server.cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090 default", server.cfg.Port)
	}
	if server.cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %s, want /metrics default", server.cfg.MetricsPath)
	}
}

func TestServer_HealthHandler(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)

	server.RegisterHealthCheck("gateway", func() Check {
		return Check{Status: "healthy", Message: "connected"}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var status HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("status = %s, want healthy", status.Status)
	}
	if status.Checks["gateway"].Status != "healthy" {
		t.Errorf("gateway check = %s, want healthy", status.Checks["gateway"].Status)
	}
}

func TestServer_HealthHandler_Unhealthy(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)

	server.RegisterHealthCheck("gateway", func() Check {
		return Check{Status: "unhealthy", Message: "connection refused"}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.healthHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestServer_ReadyHandler(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	server.readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	server.RegisterHealthCheck("gateway", func() Check {
		return Check{Status: "unhealthy"}
	})

	w = httptest.NewRecorder()
	server.readyHandler(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestServer_Uptime(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)
	if server.Uptime() < 0 {
		t.Error("Uptime() should not be negative")
	}
}
