// Package config adapts the external flat <section>.<key> -> string
// map supplied by the Config component into typed feature flags and
// surface tunables, and propagates reloads to registered listeners.
//
// Grounded on control.ConfigStore (thread-safe snapshot + listener
// dispatch) and control.RegisterReloadHook/TriggerHotReloadSync from
// the teacher's hot-reload design, generalized from an untyped
// map[string]any config store to the Core's dotted string map.
package config

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Flags is the typed view of the external Config snapshot the
// Lifecycle Controller and Services consult.
type Flags struct {
	UseUDP              bool
	UseNetworkStatus    bool
	UseConduit          bool
	UseNotifications    bool
	DedicatedLoopThread bool

	ReactorPollTimeout        time.Duration
	QueuedResponseTTL         time.Duration
	DescriptorSweepInterval   time.Duration
	BufferLedgerResolution    time.Duration
	WriteBufferRetainTTL      time.Duration
}

// DefaultFlags returns the values the Core assumes when the external
// Config component supplies no matching key.
func DefaultFlags() Flags {
	return Flags{
		UseUDP:                  true,
		UseNetworkStatus:        true,
		UseConduit:              false,
		UseNotifications:        false,
		DedicatedLoopThread:     false,
		ReactorPollTimeout:      50 * time.Millisecond,
		QueuedResponseTTL:       32 * time.Second,
		DescriptorSweepInterval: 1024 * time.Millisecond,
		BufferLedgerResolution:  8 * time.Millisecond,
		WriteBufferRetainTTL:    256 * time.Millisecond,
	}
}

// Store holds the latest Flags snapshot and dispatches reload hooks
// when a new external snapshot is applied, matching the teacher's
// ConfigStore.SetConfig -> dispatchReload flow.
type Store struct {
	mu      sync.RWMutex
	flags   Flags
	raw     map[string]string
	onReload []func(Flags)
}

// NewStore builds a Store seeded with DefaultFlags, then immediately
// applies the given raw snapshot (if non-nil).
func NewStore(raw map[string]string) *Store {
	s := &Store{flags: DefaultFlags()}
	if raw != nil {
		s.Apply(raw)
	}
	return s
}

// Snapshot returns the current typed Flags.
func (s *Store) Snapshot() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// OnReload registers a listener invoked synchronously every time Apply
// runs, so callers observe each reload deterministically (tests rely
// on this; see control.TriggerHotReloadSync in the teacher).
func (s *Store) OnReload(fn func(Flags)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Apply merges a new external snapshot over the current one and
// dispatches reload hooks with the resulting Flags.
func (s *Store) Apply(raw map[string]string) {
	s.mu.Lock()
	if s.raw == nil {
		s.raw = map[string]string{}
	}
	for k, v := range raw {
		s.raw[k] = v
	}
	flags := parse(s.raw)
	s.flags = flags
	hooks := append([]func(Flags){}, s.onReload...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(flags)
	}
}

func parse(raw map[string]string) Flags {
	f := DefaultFlags()
	if v, ok := raw["core.useUDP"]; ok {
		f.UseUDP = parseBool(v, f.UseUDP)
	}
	if v, ok := raw["core.useNetworkStatus"]; ok {
		f.UseNetworkStatus = parseBool(v, f.UseNetworkStatus)
	}
	if v, ok := raw["core.useConduit"]; ok {
		f.UseConduit = parseBool(v, f.UseConduit)
	}
	if v, ok := raw["core.useNotifications"]; ok {
		f.UseNotifications = parseBool(v, f.UseNotifications)
	}
	if v, ok := raw["core.dedicatedLoopThread"]; ok {
		f.DedicatedLoopThread = parseBool(v, f.DedicatedLoopThread)
	}
	if v, ok := raw["reactor.pollTimeout"]; ok {
		f.ReactorPollTimeout = parseMillis(v, f.ReactorPollTimeout)
	}
	if v, ok := raw["queuedresponse.ttl"]; ok {
		f.QueuedResponseTTL = parseMillis(v, f.QueuedResponseTTL)
	}
	if v, ok := raw["timers.descriptorSweepInterval"]; ok {
		f.DescriptorSweepInterval = parseMillis(v, f.DescriptorSweepInterval)
	}
	if v, ok := raw["timers.bufferLedgerResolution"]; ok {
		f.BufferLedgerResolution = parseMillis(v, f.BufferLedgerResolution)
	}
	if v, ok := raw["sharedbuffer.writeRetainTTL"]; ok {
		f.WriteBufferRetainTTL = parseMillis(v, f.WriteBufferRetainTTL)
	}
	return f
}

// parseBool follows the original runtime's implicit truthiness: "1",
// "true", "yes" (case-insensitive) are true; "0", "false", "no" are
// false; anything else keeps the fallback.
func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func parseMillis(v string, fallback time.Duration) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
