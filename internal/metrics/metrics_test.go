package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterTwiceIsTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should tolerate duplicates: %v", err)
	}
}

func TestObservationsAreGathered(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ObserveUpstream("search", time.Millisecond, errors.New("boom"))
	ObserveView("entity", -time.Second, "weird")
	release := FanoutStarted()
	release()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}
	for _, want := range []string{
		"volcano_risk_upstream_requests_total",
		"volcano_risk_view_requests_total",
		"volcano_risk_fanout_inflight",
	} {
		if !names[want] {
			t.Fatalf("expected %s to be gathered, got %v", want, names)
		}
	}
}
