//go:build !linux

package lifecycle

import "runtime"

// RegisterPlatformProbes adds the portable fallback debug probes for
// platforms without a dedicated probe set.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any { return runtime.NumCPU() })
}
