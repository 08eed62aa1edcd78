package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiagnosticsServerStatusEndpoints(t *testing.T) {
	m := NewManager(DefaultConfig())

	srv := NewDiagnosticsServer(DiagnosticsConfig{
		Port: 0,
		Provider: func() any {
			return map[string]any{"tier": "primary", "degraded": false}
		},
		Retry: func() any {
			return map[string]any{"pending": 3, "failed": 1}
		},
	}, m)

	t.Run("provider status", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/status/provider", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON response: %v", err)
		}
		if body["tier"] != "primary" {
			t.Errorf("unexpected tier %v", body["tier"])
		}
	})

	t.Run("retry status", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/status/retry", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("unconfigured endpoint", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/status/corrections", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}
