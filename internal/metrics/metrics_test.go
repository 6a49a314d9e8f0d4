package metrics

import (
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	// Verify our custom metrics exist by incrementing one and gathering again.
	m.ConnectionsTotal.WithLabelValues(OutcomeProxied).Inc()
	m.RelayBytesTotal.WithLabelValues(DirectionToClient).Add(42)

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"prefix_proxy_connections_total": false,
		"prefix_proxy_relay_bytes_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestNew_ActiveGaugeMoves(t *testing.T) {
	m := New()

	m.ConnectionsActive.Inc()
	m.ConnectionsActive.Inc()
	m.ConnectionsActive.Dec()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "prefix_proxy_connections_active" {
			continue
		}
		if got := f.GetMetric()[0].GetGauge().GetValue(); got != 1 {
			t.Errorf("connections_active = %v, want 1", got)
		}
		return
	}
	t.Error("prefix_proxy_connections_active not gathered")
}
