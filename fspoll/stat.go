package fspoll

import "os"

// Stat is a stable snapshot of a path's metadata, compared field-by-field
// across polls to decide whether to fire a change callback. Deliberately
// excludes atime: a watcher would otherwise fire on its own reads, and
// most filesystems don't even keep atime precise enough to be useful here.
type Stat struct {
	Dev       uint64
	Ino       uint64
	Mode      uint32
	Nlink     uint64
	Uid       uint32
	Gid       uint32
	Rdev      uint64
	Size      int64
	Blksize   int64
	Blocks    int64
	Flags     uint32
	Gen       uint32
	MtimSec   int64
	MtimNsec  int64
	CtimSec   int64
	CtimNsec  int64
	BirthSec  int64
	BirthNsec int64
}

// Equal reports whether a and b describe the same observed file state, per
// the field set original_source's statbuf_eq compares (fs-poll.c): it
// deliberately omits nlink/rdev/blksize/blocks, so two snapshots differing
// only in hardlink count or block allocation are equal and must not fire.
func (a Stat) Equal(b Stat) bool {
	return a.Dev == b.Dev &&
		a.Ino == b.Ino &&
		a.Mode == b.Mode &&
		a.Uid == b.Uid &&
		a.Gid == b.Gid &&
		a.Size == b.Size &&
		a.Flags == b.Flags &&
		a.Gen == b.Gen &&
		a.MtimSec == b.MtimSec &&
		a.MtimNsec == b.MtimNsec &&
		a.CtimSec == b.CtimSec &&
		a.CtimNsec == b.CtimNsec &&
		a.BirthSec == b.BirthSec &&
		a.BirthNsec == b.BirthNsec
}

// statPath stats path, following symlinks (matching uv_fs_poll's use of
// uv_fs_stat rather than uv_fs_lstat).
func statPath(path string) (Stat, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Stat{}, err
	}
	s := extractStat(fi)
	birthtime(path, &s)
	return s, nil
}
