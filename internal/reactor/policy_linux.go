//go:build linux

package reactor

import "runtime"

// policyName reports which poll policy this build applies, matching
// spec.md section 4.1's platform table. The teacher's GLib main-loop
// attachment (UVSource prepare/check/dispatch, see
// original_source/src/core/core.cc) requires a live GMainLoop supplied
// by the Shell/WebHost; Core has none of its own, so it always runs
// its dedicated goroutine policy and additionally exposes
// PendingTimeout and DispatchPending (reactor.go), the prepare and
// dispatch phases of that shape, for a Shell that wants to attach the
// Reactor to its own main loop instead.
const policyName = "linux"

// lockOSThreadIfDedicated pins the loop goroutine to one OS thread so
// the dispatch queue is always drained from the same kernel thread.
func (r *Reactor) lockOSThreadIfDedicated() {
	runtime.LockOSThread()
}
