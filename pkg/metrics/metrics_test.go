package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)

	// Record some metrics
	m.RecordSearch("hybrid", 25*time.Millisecond)
	m.RecordSearch("keyword", 5*time.Millisecond)
	m.RecordFallback("primary", "api_key_invalid")
	m.RecordRetryAttempt("embedded")
	m.RecordCorrection("supersede")
	m.SetRetryQueueDepth(7)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		"engram_searches_total",
		"engram_provider_fallbacks_total",
		"engram_retry_attempts_total",
		"engram_corrections_total",
		"engram_retry_queue_depth",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	m := NoOpManager()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestNoOpManagerRecordsSafely(t *testing.T) {
	m := NoOpManager()

	// None of these should panic on a disabled manager.
	m.RecordSearch("hybrid", time.Second)
	m.RecordIndexed("embedded")
	m.RecordFallback("secondary", "local_unavailable")
	m.SetActiveTier(2)
	m.RecordEmbedDuration(time.Millisecond)
	m.RecordRetryAttempt("failed")
	m.SetRetryQueueDepth(0)
	m.RecordCorrection("merge")
	m.RecordCorrectionUndo()
}
