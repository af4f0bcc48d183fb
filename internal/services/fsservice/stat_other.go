//go:build !linux

package fsservice

import (
	"os"

	"github.com/runtimecore/core/coreapi"
)

// fillPlatformStat outside Linux only copies MtimeMs into CtimeMs and
// AtimeMs: os.FileInfo carries no portable inode/device/ownership
// fields, so those stay at their zero value rather than risking a
// platform-specific syscall.Stat_t layout this module has not
// validated.
func fillPlatformStat(st *coreapi.Stat, info os.FileInfo) {
	st.CtimeMs = st.MtimeMs
	st.AtimeMs = st.MtimeMs
}
