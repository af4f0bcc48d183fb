package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func inlineDispatch(f func()) { f() }

func TestSetTimeoutFires(t *testing.T) {
	s := New(zerolog.Nop(), inlineDispatch)
	done := make(chan struct{})
	s.SetTimeout(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("setTimeout never fired")
	}
}

func TestClearTimeoutPreventsFire(t *testing.T) {
	s := New(zerolog.Nop(), inlineDispatch)
	var fired atomic.Bool
	id := s.SetTimeout(30*time.Millisecond, func() { fired.Store(true) })

	if !s.ClearTimeout(id) {
		t.Fatal("expected ClearTimeout to report true for a live timer")
	}
	if s.ClearTimeout(id) {
		t.Fatal("expected second ClearTimeout on the same id to report false")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatal("callback fired after ClearTimeout")
	}
}

// TestClearIntervalStopsFurtherFires exercises spec.md testable
// property 5.
func TestClearIntervalStopsFurtherFires(t *testing.T) {
	s := New(zerolog.Nop(), inlineDispatch)
	var count atomic.Int32
	id := s.SetInterval(5*time.Millisecond, func() { count.Add(1) })

	time.Sleep(40 * time.Millisecond)
	if !s.ClearInterval(id) {
		t.Fatal("expected ClearInterval to report true")
	}

	observed := count.Load()
	time.Sleep(40 * time.Millisecond)
	if count.Load() != observed {
		t.Fatalf("interval fired again after clear: before=%d after=%d", observed, count.Load())
	}
}

func TestClearUnknownIDReportsFalse(t *testing.T) {
	s := New(zerolog.Nop(), inlineDispatch)
	if s.ClearTimeout(9999) {
		t.Fatal("expected false for unknown id")
	}
	if s.ClearInterval(9999) {
		t.Fatal("expected false for unknown id")
	}
}

func TestHousekeepingRestartIsIdempotent(t *testing.T) {
	s := New(zerolog.Nop(), inlineDispatch)
	var count atomic.Int32
	s.RegisterHousekeeping("sweep", 5*time.Millisecond, func() { count.Add(1) })

	s.Start()
	s.Start() // restart-if-present: must not double the goroutines
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	seen := count.Load()
	time.Sleep(30 * time.Millisecond)
	if count.Load() != seen {
		t.Fatalf("housekeeping fired after Stop: before=%d after=%d", seen, count.Load())
	}
}
