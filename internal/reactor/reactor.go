// Package reactor implements the Runtime Core's single asynchronous
// I/O loop and the cross-thread Dispatcher that feeds it.
//
// Grounded on original_source/src/core/core.cc (Core::runEventLoop,
// Core::dispatchEventLoop, Core::pauseEventLoop, Core::stopEventLoop,
// the uv_async_t-driven dispatch-queue drain) and on the teacher's
// core/concurrency/eventloop.go (batched inbox channel, atomic running
// flag, graceful Stop/doneCh handshake). Every service in this module
// reaches the resource table, the filesystem, and the network only by
// submitting a Task through Dispatch; Task bodies run on the goroutine
// Start spawns, except the tasks Pause drains before stopping the loop
// and the turn DispatchPending runs, which execute on the goroutine
// that called Pause or DispatchPending.
package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
)

// Task is a unit of work submitted to the reactor thread. Tasks must
// never panic across the loop boundary; a Task that can fail reports
// the failure through the Result it produces, per spec.md section 7's
// propagation policy. A panicking Task is recovered and logged so one
// bad callback cannot take down the loop.
type Task func()

// State is the Reactor's own run state, independent of the Lifecycle
// Controller's broader state machine.
type State int32

const (
	StateInitial State = iota
	StateRunning
	StatePaused
	StateStopped
)

// Reactor owns the loop goroutine, the FIFO dispatch queue, and the
// wake signal described in spec.md section 4.1 and 4.2.
type Reactor struct {
	Log zerolog.Logger

	// CanStart lets an owning Lifecycle Controller veto a Start call
	// while it is ShuttingDown or Paused, without Reactor importing the
	// lifecycle package (spec.md: "fails if ... Lifecycle Controller is
	// in ShuttingDown/Paused").
	CanStart func() error

	PollTimeout time.Duration

	mu      sync.Mutex
	q       *queue.Queue
	wake    chan struct{}
	stopCh  chan struct{}
	pauseCh chan struct{}
	doneCh  chan struct{}

	state atomic.Int32
	seq   atomic.Uint64
}

// New constructs a Reactor; there is no separate Init step. New builds
// the dispatch queue and wake channel, and each Start creates the
// stop/done channels for that run.
func New(log zerolog.Logger, pollTimeout time.Duration) *Reactor {
	if pollTimeout <= 0 {
		pollTimeout = 50 * time.Millisecond
	}
	r := &Reactor{
		Log:         log,
		PollTimeout: pollTimeout,
		q:           queue.New(),
		wake:        make(chan struct{}, 1),
	}
	r.state.Store(int32(StateInitial))
	return r
}

// State reports the current run state.
func (r *Reactor) State() State {
	return State(r.state.Load())
}

// IsRunning reports whether the loop goroutine is actively polling.
func (r *Reactor) IsRunning() bool {
	return r.State() == StateRunning
}

// Start begins polling. It is a no-op if already running, and fails if
// CanStart vetoes it (Lifecycle is ShuttingDown or Paused).
func (r *Reactor) Start() error {
	if r.CanStart != nil {
		if err := r.CanStart(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if r.state.Load() == int32(StateRunning) {
		r.mu.Unlock()
		return nil
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	r.state.Store(int32(StateRunning))
	go r.loop(r.stopCh, r.doneCh)
	return nil
}

// Stop cancels outstanding dispatch work, waits for the loop goroutine
// to exit, and leaves the Reactor in StateStopped. Stop is idempotent.
func (r *Reactor) Stop() {
	if r.State() == StateStopped || r.State() == StateInitial {
		r.state.Store(int32(StateStopped))
		return
	}

	r.mu.Lock()
	done := r.doneCh
	stop := r.stopCh
	r.mu.Unlock()

	r.state.Store(int32(StateStopped))
	if stop != nil {
		closeOnce(stop)
	}
	if done != nil {
		<-done
	}
}

// Pause drains the dispatch queue and clears the running flag while
// keeping the Reactor otherwise intact, so Resume can continue without
// losing registered periodic work (spec.md 4.1).
func (r *Reactor) Pause() {
	if r.State() != StateRunning {
		return
	}

	// Drain synchronously: run every queued task before stopping the
	// loop goroutine, matching Core::pauseEventLoop's drain-then-stop.
	r.drainSync()

	r.mu.Lock()
	stop := r.stopCh
	done := r.doneCh
	r.mu.Unlock()

	r.state.Store(int32(StatePaused))
	if stop != nil {
		closeOnce(stop)
	}
	if done != nil {
		<-done
	}
}

// Resume restarts polling after Pause.
func (r *Reactor) Resume() error {
	if r.State() != StatePaused {
		return nil
	}
	return r.Start()
}

// Wake signals the loop that new dispatched work exists. It is
// thread-safe and non-blocking.
func (r *Reactor) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Dispatch pushes f onto the FIFO queue under the Dispatcher's lock
// and wakes the loop. Work dispatched from one goroutine is observed
// in the order it was dispatched; work from distinct goroutines may
// interleave arbitrarily. A reentrant Dispatch call made from within a
// running Task is only observed on the next turn, since the queue is
// drained to a fixed snapshot length per turn.
func (r *Reactor) Dispatch(f func()) {
	r.mu.Lock()
	r.q.Add(Task(f))
	r.mu.Unlock()
	r.Wake()
}

// QueueLen reports the number of tasks currently waiting to be drained,
// for metrics/debug probes (spec.md section 4.13).
func (r *Reactor) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}

// loop is the poll routine: it sleeps at most PollTimeout between
// turns so externally dispatched work is observed promptly even with
// no timers due, then drains the queue to the length it had at the
// start of the turn (so reentrant Dispatch calls land on the next
// turn, not this one).
func (r *Reactor) loop(stop <-chan struct{}, done chan<- struct{}) {
	r.lockOSThreadIfDedicated()
	defer close(done)

	ticker := time.NewTicker(r.PollTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-r.wake:
			r.drainTurn()
		case <-ticker.C:
			r.drainTurn()
		}
	}
}

// drainTurn runs exactly the tasks present in the queue at the moment
// it is called, so a task that reentrantly dispatches more work cannot
// starve the turn it runs in.
func (r *Reactor) drainTurn() {
	r.mu.Lock()
	n := r.q.Length()
	tasks := make([]Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, r.q.Remove().(Task))
	}
	r.mu.Unlock()

	for _, t := range tasks {
		r.runTask(t)
	}
}

// drainSync runs every task currently queued, looping until the queue
// is empty, used by Pause to guarantee the dispatch queue is fully
// drained before the loop goroutine stops (spec.md: "clears running
// flag after draining the dispatch queue").
func (r *Reactor) drainSync() {
	for {
		r.mu.Lock()
		if r.q.Length() == 0 {
			r.mu.Unlock()
			return
		}
		t := r.q.Remove().(Task)
		r.mu.Unlock()
		r.runTask(t)
	}
}

func (r *Reactor) runTask(t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Log.Error().Interface("panic", rec).Msg("reactor: recovered panic in dispatched task")
		}
	}()
	t()
}

// PendingTimeout reports how long an external main loop may sleep
// before it must call DispatchPending again, mirroring the "prepare"
// phase of the GLib GSourceFuncs the original runtime attaches on
// Linux (see original_source/src/core/core.cc's loopSourceFunctions).
// It returns 0 whenever there is work ready right now.
func (r *Reactor) PendingTimeout() time.Duration {
	r.mu.Lock()
	n := r.q.Length()
	r.mu.Unlock()
	if n > 0 {
		return 0
	}
	return r.PollTimeout
}

// DispatchPending runs one non-blocking turn: the "dispatch" phase of
// the same GLib source shape, for a Shell embedding its own main loop
// on Linux instead of using Core's dedicated goroutine.
func (r *Reactor) DispatchPending() {
	r.drainTurn()
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
