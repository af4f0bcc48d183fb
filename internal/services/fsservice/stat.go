package fsservice

import (
	"os"

	"github.com/runtimecore/core/coreapi"
)

// Stat reports path's full stat projection, per spec.md section 4.5
// and the typed-struct expansion of SPEC_FULL.md section 9.
func (s *Service) Stat(seq, path string, reply func(coreapi.Result)) {
	go func() {
		info, err := os.Lstat(path)
		s.complete(func() {
			if err != nil {
				reply(coreapi.Failed("fs.stat", seq, coreapi.PlatformError(coreapi.NoID, err)))
				return
			}
			reply(coreapi.OK("fs.stat", seq, statFromFileInfo(info)))
		})
	}()
}

func statKind(info os.FileInfo) string {
	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return coreapi.StatKindSymlink
	case info.IsDir():
		return coreapi.StatKindDirectory
	case mode.IsRegular():
		return coreapi.StatKindFile
	default:
		return coreapi.StatKindOther
	}
}

func statFromFileInfo(info os.FileInfo) coreapi.Stat {
	st := coreapi.Stat{
		Size:    info.Size(),
		Mode:    uint32(info.Mode().Perm()),
		Kind:    statKind(info),
		MtimeMs: info.ModTime().UnixMilli(),
	}
	fillPlatformStat(&st, info)
	return st
}
