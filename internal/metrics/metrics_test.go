package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCycleCounts(t *testing.T) {
	m := New()

	m.Cycle(OutcomeNoTask, "is_availability")
	m.Cycle(OutcomeNoTask, "is_availability")
	m.Cycle(OutcomeDispatched, "is_distribution")

	if got := testutil.ToFloat64(m.cycles.WithLabelValues(OutcomeNoTask, "is_availability")); got != 2 {
		t.Fatalf("expected 2 no_task cycles, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess); got == 0 {
		t.Fatal("expected last success timestamp to be set")
	}
}

func TestDispatchStepResult(t *testing.T) {
	m := New()

	m.DispatchStep("store", time.Millisecond, nil)
	m.DispatchStep("notify", time.Millisecond, errors.New("boom"))

	if got := testutil.CollectAndCount(m.dispatchSteps); got != 2 {
		t.Fatalf("expected 2 series, got %d", got)
	}
}

func TestDanglingRefs(t *testing.T) {
	m := New()
	m.DanglingRefs(3)
	if got := testutil.ToFloat64(m.danglingRefs); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Cycle(OutcomeDispatched, "is_availability")
	m.DispatchStep("store", time.Second, nil)
	m.DanglingRefs(1)
}
