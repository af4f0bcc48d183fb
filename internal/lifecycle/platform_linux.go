//go:build linux

package lifecycle

import "runtime"

// RegisterPlatformProbes adds Linux-specific debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any { return runtime.NumCPU() })
}
