// Package lifecycle implements the Lifecycle Controller: the finite
// state machine that orchestrates init, pause, resume, and shutdown of
// every subsystem sitting on top of the Reactor.
//
// Grounded on Core::shutdown/resume/pause/stop in
// original_source/src/core/core.cc, generalized from that file's fixed
// udp/networkStatus/conduit/notifications quartet into an ordered list
// of named Stage hooks so the Lifecycle Controller does not import the
// concrete service packages it orchestrates.
package lifecycle

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/internal/reactor"
)

// State is a position in the Initial -> Running <-> Paused ->
// ShuttingDown -> Terminated machine described by spec.md section
// 4.12. Every transition method below is idempotent.
type State int32

const (
	StateInitial State = iota
	StateRunning
	StatePaused
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Stage is a quiescable subsystem the Controller pauses and resumes in
// a fixed order: UDP recv, network-status polling, the conduit server,
// and notifications, per spec.md section 4.12. Pause/Resume must not
// block on the reactor thread; they run on the caller's goroutine
// before the reactor itself is paused or after it has resumed.
type Stage struct {
	Name   string
	Pause  func()
	Resume func()
}

// Controller owns the Reactor's pause/resume/stop lifecycle plus the
// ordered Stage list and the two shutdown-only teardown hooks
// (child-process supervisor, UI-loop source release) named in
// spec.md section 4.12.
type Controller struct {
	log     zerolog.Logger
	reactor *reactor.Reactor

	mu     sync.Mutex
	stages []Stage

	// ShutdownChildProcesses tears down any spawned child-process
	// supervisor; a no-op on platforms with none (iOS, per the
	// original's !SOCKET_RUNTIME_PLATFORM_IOS guard).
	ShutdownChildProcesses func()
	// ReleaseUILoopSource detaches the reactor's GLib source from a
	// host UI main loop; relevant only when the Reactor is running
	// attached rather than on its own dedicated thread (spec.md
	// section 4.1's Linux policy).
	ReleaseUILoopSource func()

	state   atomic.Int32
	metrics *MetricsRegistry
	debug   *DebugProbes
}

// New constructs a Controller in StateInitial, bound to r. r.CanStart
// is wired to veto Start/Resume calls while the Controller is
// ShuttingDown or Paused, matching spec.md's start() precondition.
func New(log zerolog.Logger, r *reactor.Reactor) *Controller {
	c := &Controller{
		log:     log,
		reactor: r,
		metrics: NewMetricsRegistry(),
		debug:   NewDebugProbes(),
	}
	c.state.Store(int32(StateInitial))
	r.CanStart = c.canReactorStart
	c.debug.RegisterProbe("lifecycle.state", func() any { return c.State().String() })
	c.debug.RegisterProbe("reactor.queueLen", func() any { return r.QueueLen() })
	RegisterPlatformProbes(c.debug)
	return c
}

func (c *Controller) canReactorStart() error {
	switch c.State() {
	case StateShuttingDown, StatePaused:
		return errNotStartable(c.State())
	default:
		return nil
	}
}

// State reports the Controller's current position in the machine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Reactor returns the Controller's Reactor, so services and the
// Router can wire their async entries to its Dispatch without the
// Controller importing them.
func (c *Controller) Reactor() *reactor.Reactor {
	return c.reactor
}

// AddStage registers a quiescable subsystem. Stages pause in
// registration order and resume in reverse order, so a stage that
// depends on an earlier one being live is always paused after it and
// resumed before it.
func (c *Controller) AddStage(s Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, s)
}

// Start transitions Initial -> Running, starting the reactor. It is a
// no-op once the Controller has left StateInitial.
func (c *Controller) Start() error {
	if c.State() != StateInitial {
		return nil
	}
	if err := c.reactor.Start(); err != nil {
		return err
	}
	c.state.Store(int32(StateRunning))
	return nil
}

// Pause transitions Running -> Paused: it quiesces every registered
// Stage in registration order, then pauses the reactor, matching
// Core::pause's udp/networkStatus/conduit/notifications-then-
// pauseEventLoop sequence. It is a no-op if not currently Running.
func (c *Controller) Pause() error {
	if c.State() != StateRunning {
		return nil
	}

	c.mu.Lock()
	stages := append([]Stage{}, c.stages...)
	c.mu.Unlock()

	for _, s := range stages {
		if s.Pause != nil {
			s.Pause()
		}
	}

	c.reactor.Pause()
	c.state.Store(int32(StatePaused))
	return nil
}

// Resume transitions Paused -> Running: it restarts the reactor, then
// resumes every registered Stage in reverse registration order,
// matching Core::resume's runEventLoop-then-udp/networkStatus/
// conduit/notifications sequence. It is a no-op if not currently
// Paused.
func (c *Controller) Resume() error {
	if c.State() != StatePaused {
		return nil
	}

	// Leave Paused before restarting the reactor: canReactorStart vetoes
	// any start while the Controller still reports Paused.
	c.state.Store(int32(StateRunning))
	if err := c.reactor.Resume(); err != nil {
		c.state.Store(int32(StatePaused))
		return err
	}

	c.mu.Lock()
	stages := append([]Stage{}, c.stages...)
	c.mu.Unlock()

	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i].Resume != nil {
			stages[i].Resume()
		}
	}
	return nil
}

// Shutdown transitions Running or Paused -> ShuttingDown -> Terminated:
// it pauses every Stage (if not already paused), tears down any
// child-process supervisor, stops the reactor, and releases the
// UI-loop source, matching Core::shutdown. It is idempotent: a second
// call once Terminated is a no-op.
func (c *Controller) Shutdown() error {
	switch c.State() {
	case StateTerminated, StateShuttingDown:
		return nil
	}

	if c.State() == StateRunning {
		c.mu.Lock()
		stages := append([]Stage{}, c.stages...)
		c.mu.Unlock()
		for _, s := range stages {
			if s.Pause != nil {
				s.Pause()
			}
		}
	}

	c.state.Store(int32(StateShuttingDown))

	if c.ShutdownChildProcesses != nil {
		c.ShutdownChildProcesses()
	}

	c.reactor.Stop()

	if c.ReleaseUILoopSource != nil {
		c.ReleaseUILoopSource()
	}

	c.state.Store(int32(StateTerminated))
	c.log.Info().Msg("lifecycle: terminated")
	return nil
}

type lifecycleError string

func (e lifecycleError) Error() string { return string(e) }

func errNotStartable(s State) error {
	return lifecycleError("reactor cannot start while lifecycle controller is " + s.String())
}
