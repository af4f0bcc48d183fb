//go:build !linux && !darwin

package reactor

import "runtime"

// policyName reports the poll policy for platforms with neither a
// GLib main loop nor GCD to interleave with: the loop simply runs on
// its own owned OS thread, as spec.md section 4.1 requires for "all
// other platforms".
const policyName = "other"

func (r *Reactor) lockOSThreadIfDedicated() {
	runtime.LockOSThread()
}
