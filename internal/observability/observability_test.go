package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(domain.LoggingConfig{Level: "info", Format: "json"}, &buf)
		logger.Debug("hidden")
		logger.Info("prediction completed", "domain", "churn")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
		}
		if entry["msg"] != "prediction completed" || entry["domain"] != "churn" {
			t.Errorf("unexpected entry: %v", entry)
		}
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"}, &buf)
		logger.Debug("visible", "k", "v")

		if !strings.Contains(buf.String(), "msg=visible") || !strings.Contains(buf.String(), "k=v") {
			t.Errorf("unexpected text output: %q", buf.String())
		}
	})
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/predictions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", m.Handler())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/predictions/abc", nil))
	m.ObservePrediction(domain.DomainChurn, "High")
	m.ObserveTrainingJob(domain.JobCompleted)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`kestrel_http_requests_total{code="404",route="/predictions/{id}"} 1`,
		`kestrel_predictions_total{domain="churn",label="High"} 1`,
		`kestrel_training_jobs_total{status="completed"} 1`,
		`kestrel_http_request_duration_seconds_count{route="/predictions/{id}"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObservePrediction(domain.DomainChurn, "Low")
	m.ObserveTrainingJob(domain.JobError)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil metrics middleware should pass through")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), domain.TracingConfig{Enabled: false, Endpoint: "localhost:4318"}, "test")
	if err != nil {
		t.Fatalf("SetupTracing failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown failed: %v", err)
	}

	shutdown, err = SetupTracing(context.Background(), domain.TracingConfig{Enabled: true}, "test")
	if err != nil {
		t.Fatalf("SetupTracing without endpoint failed: %v", err)
	}
	shutdown(context.Background())
}

func TestSetupTracingEnabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), domain.TracingConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		SampleRatio: 0.5,
	}, "test")
	if err != nil {
		t.Fatalf("SetupTracing failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shutdown(ctx)
}
