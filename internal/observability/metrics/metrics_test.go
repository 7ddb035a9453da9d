package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveBooking("create", "ok")
	m.ObserveBooking("create", "ok")
	m.ObserveBooking("create", "conflict")
	m.ObserveSlotQuery()
	m.ObserveHTTP("GET", "/api/agenda", 200, 25*time.Millisecond)

	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("create", "ok")); got != 2 {
		t.Fatalf("create/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("create", "conflict")); got != 1 {
		t.Fatalf("create/conflict = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.slotQueries); got != 1 {
		t.Fatalf("slot queries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/agenda", "200")); got != 1 {
		t.Fatalf("http requests = %v, want 1", got)
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("create", "ok")
	m.ObserveSlotQuery()
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
}
