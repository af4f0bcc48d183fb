package lifecycle

import "testing"

func TestMetricsRegistrySetAndSnapshot(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Set("reactor.queueLen", 3)
	mr.Set("resources.open", 7)

	snap := mr.Snapshot()
	if snap["reactor.queueLen"] != 3 || snap["resources.open"] != 7 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	mr.Set("reactor.queueLen", 4)
	if mr.Snapshot()["reactor.queueLen"] != 4 {
		t.Fatal("expected Set to overwrite the prior value")
	}
}

func TestControllerExposesMetricsAndDebug(t *testing.T) {
	c := newTestController(t)
	if c.Metrics() == nil {
		t.Fatal("expected a non-nil MetricsRegistry")
	}
	if c.Debug() == nil {
		t.Fatal("expected a non-nil DebugProbes registry")
	}

	state := c.Debug().DumpState()
	if _, ok := state["lifecycle.state"]; !ok {
		t.Fatalf("expected lifecycle.state probe in dump, got %v", state)
	}
	if _, ok := state["platform.cpus"]; !ok {
		t.Fatalf("expected platform.cpus probe in dump, got %v", state)
	}
}
