package admin

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"prefix-proxy-go/internal/config"
	"prefix-proxy-go/internal/metrics"
)

type fakeStatus struct {
	active int
	queued int
}

func (f *fakeStatus) ActiveConnections() int { return f.active }
func (f *fakeStatus) QueuedConnections() int { return f.queued }

func newTestServer(cfg *config.Config, m *metrics.Metrics) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger, m, "1.2.3", &fakeStatus{active: 2, queued: 1})
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&config.Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatusz(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Prefix: "/proxy/", MaxConns: 5},
	}
	s := newTestServer(cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/statusz", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["version"] != "1.2.3" {
		t.Errorf("body.version = %v, want %q", body["version"], "1.2.3")
	}
	if body["prefix"] != "/proxy/" {
		t.Errorf("body.prefix = %v, want %q", body["prefix"], "/proxy/")
	}
	if body["active_connections"] != float64(2) {
		t.Errorf("body.active_connections = %v, want 2", body["active_connections"])
	}
	if body["queued_connections"] != float64(1) {
		t.Errorf("body.queued_connections = %v, want 1", body["queued_connections"])
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		cfg := &config.Config{
			Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		}
		s := newTestServer(cfg, metrics.New())

		req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := &config.Config{
			Metrics: config.MetricsConfig{Enabled: false, Path: "/metrics"},
		}
		s := newTestServer(cfg, nil)

		req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}
