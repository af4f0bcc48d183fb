package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	r := New(zerolog.Nop(), 5*time.Millisecond)
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

// TestDispatchFIFOPerProducer verifies spec.md property 4: if one
// goroutine enqueues f then g, f runs before g.
func TestDispatchFIFOPerProducer(t *testing.T) {
	r := newTestReactor(t)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 50; i++ {
		i := i
		r.Dispatch(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 49 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched tasks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("out of order at %d: got %d", i, v)
		}
	}
}

// TestPauseResumeNoOp exercises spec.md property 8: pause(); resume()
// is observationally equivalent to a no-op beyond a bounded delay.
func TestPauseResumeNoOp(t *testing.T) {
	r := newTestReactor(t)

	r.Pause()
	if r.State() != StatePaused {
		t.Fatalf("expected paused, got %v", r.State())
	}

	if err := r.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !r.IsRunning() {
		t.Fatalf("expected running after resume")
	}

	done := make(chan struct{})
	r.Dispatch(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch after resume never ran")
	}
}

func TestReactorRecoversPanickingTask(t *testing.T) {
	r := newTestReactor(t)

	done := make(chan struct{})
	r.Dispatch(func() { panic("boom") })
	r.Dispatch(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reactor stalled after a panicking task")
	}
}
