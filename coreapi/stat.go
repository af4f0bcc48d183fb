package coreapi

// Stat is the typed projection the Filesystem Service returns for
// `fs.stat`, generalizing the JSON-only field set of spec.md section 4.5
// into a Go struct so in-process callers get compile-time field checks;
// the Router still marshals it to the same JSON shape for IPC callers.
type Stat struct {
	Size    int64  `json:"size"`
	Mode    uint32 `json:"mode"`
	Kind    string `json:"kind"`
	MtimeMs int64  `json:"mtime"`
	CtimeMs int64  `json:"ctime"`
	AtimeMs int64  `json:"atime"`
	Nlink   uint64 `json:"nlink"`
	UID     uint32 `json:"uid"`
	GID     uint32 `json:"gid"`
	Ino     uint64 `json:"ino"`
	Dev     uint64 `json:"dev"`
	Rdev    uint64 `json:"rdev"`
	Blocks  int64  `json:"blocks"`
	BlkSize int32  `json:"blksize"`
}

// Stat.Kind values.
const (
	StatKindFile      = "file"
	StatKindDirectory = "directory"
	StatKindSymlink   = "symlink"
	StatKindOther     = "other"
)
