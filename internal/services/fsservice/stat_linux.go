//go:build linux

package fsservice

import (
	"os"
	"syscall"

	"github.com/runtimecore/core/coreapi"
)

// fillPlatformStat fills the fields syscall.Stat_t carries on Linux:
// inode, device, link count, ownership, and block accounting, plus the
// ctime/atime timestamps os.FileInfo doesn't expose portably.
func fillPlatformStat(st *coreapi.Stat, info os.FileInfo) {
	raw, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	st.Nlink = uint64(raw.Nlink)
	st.UID = raw.Uid
	st.GID = raw.Gid
	st.Ino = raw.Ino
	st.Dev = uint64(raw.Dev)
	st.Rdev = uint64(raw.Rdev)
	st.Blocks = raw.Blocks
	st.BlkSize = int32(raw.Blksize)
	st.CtimeMs = raw.Ctim.Sec*1000 + raw.Ctim.Nsec/1_000_000
	st.AtimeMs = raw.Atim.Sec*1000 + raw.Atim.Nsec/1_000_000
}
