package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/rquest-bridge/internal/bridge"
	"github.com/OFFIS-RIT/rquest-bridge/internal/metrics"
	mid "github.com/OFFIS-RIT/rquest-bridge/internal/server/middleware"
)

type fixedStatus bridge.Status

func (s fixedStatus) Status() bridge.Status { return bridge.Status(s) }

func serve(e http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := New(&mid.App{})

	rec := serve(e, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	e := New(&mid.App{
		Version: "1.2.3",
		Poller: fixedStatus{
			State:       "polling",
			Cycles:      7,
			LastTaskID:  "job-1",
			LastOutcome: metrics.OutcomeDispatched,
		},
	})

	rec := serve(e, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["state"] != "polling" || body["last_task_id"] != "job-1" || body["version"] != "1.2.3" {
		t.Fatalf("unexpected status %v", body)
	}
	if body["cycles"] != float64(7) {
		t.Fatalf("expected 7 cycles, got %v", body["cycles"])
	}
}

func TestStatusWithoutPoller(t *testing.T) {
	rec := serve(New(&mid.App{}), "/status")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.Cycle(metrics.OutcomeNoTask, "none")

	rec := serve(New(&mid.App{Registry: m.Registry()}), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `rquest_bridge_poll_cycles_total{kind="none",outcome="no_task"} 1`) {
		t.Fatalf("cycle counter missing from metrics output")
	}
}
