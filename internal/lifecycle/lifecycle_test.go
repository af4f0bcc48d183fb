package lifecycle

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/internal/reactor"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	r := reactor.New(zerolog.Nop(), 5*time.Millisecond)
	c := New(zerolog.Nop(), r)
	t.Cleanup(func() { c.Shutdown() })
	return c
}

func TestStartTransitionsInitialToRunning(t *testing.T) {
	c := newTestController(t)
	if c.State() != StateInitial {
		t.Fatalf("expected Initial, got %s", c.State())
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != StateRunning {
		t.Fatalf("expected Running, got %s", c.State())
	}
	if err := c.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got error: %v", err)
	}
	if c.State() != StateRunning {
		t.Fatalf("second Start changed state to %s", c.State())
	}
}

func TestPauseQuiescesStagesInOrderAndResumeReverses(t *testing.T) {
	c := newTestController(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	var order []string
	c.AddStage(Stage{
		Name:   "udp",
		Pause:  func() { order = append(order, "udp-pause") },
		Resume: func() { order = append(order, "udp-resume") },
	})
	c.AddStage(Stage{
		Name:   "notifications",
		Pause:  func() { order = append(order, "notifications-pause") },
		Resume: func() { order = append(order, "notifications-resume") },
	})

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if c.State() != StatePaused {
		t.Fatalf("expected Paused, got %s", c.State())
	}

	if err := c.Resume(); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateRunning {
		t.Fatalf("expected Running after Resume, got %s", c.State())
	}

	want := []string{"udp-pause", "notifications-pause", "notifications-resume", "udp-resume"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

func TestPauseIsNoOpWhenNotRunning(t *testing.T) {
	c := newTestController(t)
	fired := false
	c.AddStage(Stage{Pause: func() { fired = true }})

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Fatal("Pause must not run stages while Initial")
	}
	if c.State() != StateInitial {
		t.Fatalf("expected Initial, got %s", c.State())
	}
}

func TestReactorCannotStartWhilePaused(t *testing.T) {
	c := newTestController(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}

	if err := c.Reactor().Start(); err == nil {
		t.Fatal("expected the reactor's own Start to be vetoed while the lifecycle controller is Paused")
	}
}

func TestShutdownIsIdempotentAndTerminates(t *testing.T) {
	c := newTestController(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	teardowns := 0
	c.ShutdownChildProcesses = func() { teardowns++ }

	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateTerminated {
		t.Fatalf("expected Terminated, got %s", c.State())
	}
	if teardowns != 1 {
		t.Fatalf("expected exactly one child-process teardown, got %d", teardowns)
	}

	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if teardowns != 1 {
		t.Fatalf("second Shutdown must not re-run teardown hooks, got %d calls", teardowns)
	}
}

func TestShutdownFromPausedSkipsStageRepause(t *testing.T) {
	c := newTestController(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	pauses := 0
	c.AddStage(Stage{Pause: func() { pauses++ }})

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if pauses != 1 {
		t.Fatalf("expected one pause from Pause(), got %d", pauses)
	}

	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if pauses != 1 {
		t.Fatalf("Shutdown from Paused must not re-run stage Pause hooks, got %d", pauses)
	}
	if c.State() != StateTerminated {
		t.Fatalf("expected Terminated, got %s", c.State())
	}
}
