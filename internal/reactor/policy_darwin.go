//go:build darwin

package reactor

import "runtime"

// policyName reports which poll policy this build applies. On Apple
// platforms the original runtime dispatches the loop onto a serial
// GCD queue (dispatch_async over eventLoopQueue); a single dedicated,
// OS-thread-locked goroutine is the direct Go analogue: both guarantee
// one-at-a-time, FIFO-ish execution of loop turns on one thread.
const policyName = "darwin"

func (r *Reactor) lockOSThreadIfDedicated() {
	runtime.LockOSThread()
}
