// Package timers implements the Timer Service: one-shot, immediate,
// and periodic user timers, plus the two private housekeeping timers
// (Descriptor Cleanup Ledger, Shared-Buffer Ledger) spec.md section
// 4.4 assigns to this component.
//
// Grounded on the Timer struct and
// releaseStrongReferenceDescriptors/releaseStrongReferenceSharedPointerBuffers
// housekeeping timers in original_source/src/core/core.cc, and on the
// Scheduler contract in the teacher's api/scheduler.go, generalized
// from a single Schedule/Cancel pair to the three distinct
// setTimeout/setImmediate/setInterval operations spec.md requires.
package timers

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/coreapi"
)

// Dispatch hops a callback onto the reactor thread; Services wire this
// to (*reactor.Reactor).Dispatch without this package importing
// reactor, keeping the dependency direction Timer Service -> Reactor
// the same as in spec.md's component table.
type Dispatch func(func())

type kind int

const (
	kindTimeout kind = iota
	kindImmediate
	kindInterval
)

type entry struct {
	id       coreapi.ID
	kind     kind
	period   time.Duration
	callback func()
	timer    *time.Timer
	ticker   *time.Ticker
	stopCh   chan struct{}
}

// Service implements setTimeout/setImmediate/setInterval and their
// clear* counterparts.
type Service struct {
	log      zerolog.Logger
	dispatch Dispatch

	mu      sync.Mutex
	entries map[coreapi.ID]*entry

	housekeepingMu sync.Mutex
	housekeeping   []*housekeepingTimer
	started        bool
}

type housekeepingTimer struct {
	name     string
	interval time.Duration
	fn       func()
	ticker   *time.Ticker
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Timer Service. dispatch is typically
// (*reactor.Reactor).Dispatch, so every fired callback runs on the
// reactor thread.
func New(log zerolog.Logger, dispatch Dispatch) *Service {
	return &Service{
		log:      log,
		dispatch: dispatch,
		entries:  make(map[coreapi.ID]*entry),
	}
}

// SetTimeout fires cb once, approximately d after scheduling.
func (s *Service) SetTimeout(d time.Duration, cb func()) coreapi.ID {
	id := coreapi.NewID()
	e := &entry{id: id, kind: kindTimeout, callback: cb}

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()

	e.timer = time.AfterFunc(d, func() { s.fireOneShot(id) })
	return id
}

// SetImmediate fires cb on the next reactor turn: a zero-delay timeout.
func (s *Service) SetImmediate(cb func()) coreapi.ID {
	return s.SetTimeout(0, cb)
}

// SetInterval fires cb at approximately d intervals; drift is
// permitted, catch-up is not, matching time.Ticker semantics (a slow
// consumer silently drops ticks rather than bursting).
func (s *Service) SetInterval(d time.Duration, cb func()) coreapi.ID {
	if d <= 0 {
		d = time.Millisecond
	}
	id := coreapi.NewID()
	stopCh := make(chan struct{})
	ticker := time.NewTicker(d)
	e := &entry{id: id, kind: kindInterval, period: d, callback: cb, ticker: ticker, stopCh: stopCh}

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.dispatchEntry(id)
			}
		}
	}()

	return id
}

func (s *Service) fireOneShot(id coreapi.ID) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if !ok {
		return // cleared before it fired
	}
	s.runEntry(e)
}

func (s *Service) dispatchEntry(id coreapi.ID) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.runEntry(e)
}

func (s *Service) runEntry(e *entry) {
	s.dispatch(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Uint64("timer_id", uint64(e.id)).Msg("timers: recovered panic in callback")
			}
		}()
		if e.kind == kindInterval {
			// A tick dispatched before ClearInterval must not run after it.
			s.mu.Lock()
			_, live := s.entries[e.id]
			s.mu.Unlock()
			if !live {
				return
			}
		}
		e.callback()
	})
}

// ClearTimeout cancels a pending one-shot timer. Reports false if id
// is unknown (already fired or never existed).
func (s *Service) ClearTimeout(id coreapi.ID) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	return true
}

// ClearImmediate cancels a pending setImmediate callback.
func (s *Service) ClearImmediate(id coreapi.ID) bool {
	return s.ClearTimeout(id)
}

// ClearInterval stops a periodic timer; once it returns, cb is
// guaranteed never to fire again (spec.md testable property 5).
func (s *Service) ClearInterval(id coreapi.ID) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.stopCh != nil {
		close(e.stopCh)
	}
	return true
}

// RegisterHousekeeping adds a private periodic task the Timer Service
// itself owns (the Descriptor Cleanup Ledger and Shared-Buffer Ledger
// described in spec.md section 3/4.4). It must be called before Start.
func (s *Service) RegisterHousekeeping(name string, interval time.Duration, fn func()) {
	s.housekeepingMu.Lock()
	defer s.housekeepingMu.Unlock()
	s.housekeeping = append(s.housekeeping, &housekeepingTimer{name: name, interval: interval, fn: fn})
}

// Start begins (or, per "restart-if-present" semantics, resumes) all
// registered housekeeping timers. It is safe to call after a prior
// Stop, so pause/resume cycles never drop periodicity.
func (s *Service) Start() {
	s.housekeepingMu.Lock()
	defer s.housekeepingMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, h := range s.housekeeping {
		h.ticker = time.NewTicker(h.interval)
		h.stopCh = make(chan struct{})
		h.doneCh = make(chan struct{})
		go func(h *housekeepingTimer) {
			defer close(h.doneCh)
			for {
				select {
				case <-h.stopCh:
					return
				case <-h.ticker.C:
					select {
					case <-h.stopCh:
						return
					default:
					}
					s.dispatch(func() {
						defer func() {
							if r := recover(); r != nil {
								s.log.Error().Interface("panic", r).Str("housekeeping", h.name).Msg("timers: recovered panic in housekeeping task")
							}
						}()
						h.fn()
					})
				}
			}
		}(h)
	}
}

// Stop halts all housekeeping timers without touching user timers.
func (s *Service) Stop() {
	s.housekeepingMu.Lock()
	defer s.housekeepingMu.Unlock()
	if !s.started {
		return
	}
	s.started = false

	for _, h := range s.housekeeping {
		if h.ticker != nil {
			h.ticker.Stop()
		}
		if h.stopCh != nil {
			close(h.stopCh)
		}
		if h.doneCh != nil {
			<-h.doneCh
		}
	}
}

// Len reports the number of live user timers, for metrics/debug probes.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
