package prometheus

import (
	"testing"
	"time"

	"github.com/marmos91/corerpc/pkg/dispatcher"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_CommandCompletedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CommandCompleted(dispatcher.Group(1), dispatcher.ID(2), 5*time.Millisecond, nil)

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !containsMetric(mf, "corerpc_commands_completed_total") {
		t.Fatal("expected corerpc_commands_completed_total to be registered")
	}
}

func TestMetrics_CommandCompletedRecordsErrorOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CommandCompleted(dispatcher.Group(1), dispatcher.ID(2), time.Millisecond, errBoom)

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, family := range mf {
		if family.GetName() != "corerpc_commands_completed_total" {
			continue
		}
		for _, metric := range family.Metric {
			for _, label := range metric.Label {
				if label.GetName() == "outcome" && label.GetValue() == "error" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected an \"error\" outcome label on corerpc_commands_completed_total")
	}
}

func containsMetric(mf []*dto.MetricFamily, name string) bool {
	for _, f := range mf {
		if f.GetName() == name {
			return true
		}
	}
	return false
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
