package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewCollectorDisabledRegistersNothing(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, Config{Enabled: false})
	if c.calls != nil {
		t.Fatal("expected a disabled collector to skip series construction")
	}
	mw := c.Middleware()
	if err := mw(nil); err != nil {
		t.Fatalf("expected a no-op stack mutator, got error: %v", err)
	}
}

func TestNewCollectorEnabledRegistersSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, Config{Enabled: true, SampleRate: 1.0})
	if c.calls == nil {
		t.Fatal("expected an enabled collector to construct its series")
	}
	// Vec metrics only surface in Gather once a label combination has
	// been touched, so record one call before asserting registration.
	c.calls.WithLabelValues("ec2", "run_instances").Inc()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestShouldRecordHonorsServiceAllowlist(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), Config{
		Enabled:           true,
		SampleRate:        1.0,
		MonitoredServices: []string{"ec2"},
	})
	if !c.shouldRecord("ec2", "RunInstances") {
		t.Fatal("expected ec2 to be recorded")
	}
	if c.shouldRecord("autoscaling", "CreateAutoScalingGroup") {
		t.Fatal("expected autoscaling to be filtered out by the allowlist")
	}
}

func TestShouldRecordHonorsOperationAllowlist(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), Config{
		Enabled:             true,
		SampleRate:          1.0,
		MonitoredOperations: []string{"run_instances"},
	})
	if !c.shouldRecord("ec2", "RunInstances") {
		t.Fatal("expected RunInstances (normalized run_instances) to be recorded")
	}
	if c.shouldRecord("ec2", "TerminateInstances") {
		t.Fatal("expected TerminateInstances to be filtered out by the allowlist")
	}
}

func TestShouldSampleZeroRateNeverRecords(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), Config{Enabled: true, SampleRate: 0})
	for i := 0; i < 5; i++ {
		if c.shouldSample() {
			t.Fatal("expected a zero sample rate to never record")
		}
	}
}

func TestShouldSampleHalfRateRecordsEveryOtherCall(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), Config{Enabled: true, SampleRate: 0.5})
	recorded := 0
	for i := 0; i < 10; i++ {
		if c.shouldSample() {
			recorded++
		}
	}
	if recorded != 5 {
		t.Fatalf("expected 5 of 10 calls sampled at rate 0.5, got %d", recorded)
	}
}

func TestNormalizeOperationConvertsToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"RunInstances":       "run_instances",
		"CreateFleet":        "create_fleet",
		"DescribeInstances":  "describe_instances",
		"CreateOrUpdateTags": "create_or_update_tags",
	}
	for in, want := range cases {
		if got := normalizeOperation(in); got != want {
			t.Errorf("normalizeOperation(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestActiveRequestsStartsAtZero(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), Config{Enabled: true})
	if n := c.ActiveRequests(); n != 0 {
		t.Fatalf("expected no in-flight requests on a fresh collector, got %d", n)
	}
}
