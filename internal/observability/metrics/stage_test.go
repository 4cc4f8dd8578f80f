package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageMetricsCountsRunsByStatus(t *testing.T) {
	m := NewStageMetrics("pipeline")

	m.StartRun()
	if got := testutil.ToFloat64(m.runInFlight); got != 1 {
		t.Fatalf("expected one in-flight run, got %v", got)
	}
	m.FinishRun(2*time.Second, nil)
	m.StartRun()
	m.FinishRun(time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.runInFlight); got != 0 {
		t.Fatalf("expected no in-flight runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.runTotal.WithLabelValues("pipeline", "success")); got != 1 {
		t.Fatalf("expected one successful run, got %v", got)
	}
	if got := testutil.ToFloat64(m.runTotal.WithLabelValues("pipeline", "error")); got != 1 {
		t.Fatalf("expected one failed run, got %v", got)
	}
}

func TestStageMetricsObserveRows(t *testing.T) {
	m := NewStageMetrics("pipeline")
	m.ObserveRows("train", "input", 48)
	m.ObserveRows("train", "output", 60)
	m.ObserveRows("test", "input", -1)

	if got := testutil.ToFloat64(m.rows.WithLabelValues("pipeline", "train", "output")); got != 60 {
		t.Fatalf("unexpected output rows %v", got)
	}
	if n := testutil.CollectAndCount(m.rows); n != 2 {
		t.Fatalf("expected 2 row series, got %d", n)
	}
}

func TestStageMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewStageMetrics("worker")
	m.StartRun()
	m.FinishRun(time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "vip_transformation_run_total") {
		t.Fatalf("expected run counter in exposition, got %q", rec.Body.String())
	}
}

func TestStageMetricsPush(t *testing.T) {
	var path string
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewStageMetrics("pipeline")
	m.StartRun()
	m.FinishRun(time.Second, nil)
	if err := m.Push(context.Background(), srv.URL, "data_transformation"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if path != "/metrics/job/data_transformation" {
		t.Fatalf("unexpected push path %q", path)
	}
	if body == "" {
		t.Fatalf("expected pushed metric families")
	}
}

func TestStageMetricsPushSkipsEmptyURL(t *testing.T) {
	if err := NewStageMetrics("pipeline").Push(context.Background(), "", "job"); err != nil {
		t.Fatalf("expected no-op push, got %v", err)
	}
}

func TestStageMetricsPushReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewStageMetrics("pipeline").Push(context.Background(), srv.URL, "job"); err == nil {
		t.Fatalf("expected push error")
	}
}

func TestStageMetricsResilienceEvents(t *testing.T) {
	m := NewStageMetrics("worker")
	m.ObserveRetry("nats.publish.pipeline.transformation.completed")
	m.ObserveRetry("nats.publish.pipeline.transformation.completed")
	m.ObserveBreakerState("postgres.export_collection", "open")

	if got := testutil.ToFloat64(m.retries.WithLabelValues("worker", "nats.publish.pipeline.transformation.completed")); got != 2 {
		t.Fatalf("expected 2 retries, got %v", got)
	}
	if got := testutil.ToFloat64(m.breaker.WithLabelValues("worker", "postgres.export_collection")); got != 1 {
		t.Fatalf("expected open breaker, got %v", got)
	}
	m.ObserveBreakerState("postgres.export_collection", "closed")
	if got := testutil.ToFloat64(m.breaker.WithLabelValues("worker", "postgres.export_collection")); got != 0 {
		t.Fatalf("expected closed breaker, got %v", got)
	}
}
