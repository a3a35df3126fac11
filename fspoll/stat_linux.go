//go:build linux

package fspoll

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// extractStat pulls the fields statPath needs out of a Linux stat_t.
// Grounded on jacobsa-fuse/samples/roloopbackfs's
// fi.Sys().(*syscall.Stat_t) idiom. Linux's stat_t has no st_flags/st_gen
// (those are BSD extensions), so those stay zero here; birthtime is filled
// in separately via statx, since stat(2) has no equivalent field at all.
func extractStat(fi os.FileInfo) Stat {
	st := fi.Sys().(*syscall.Stat_t)
	s := Stat{
		Dev:      uint64(st.Dev),
		Ino:      st.Ino,
		Mode:     st.Mode,
		Nlink:    uint64(st.Nlink),
		Uid:      st.Uid,
		Gid:      st.Gid,
		Rdev:     uint64(st.Rdev),
		Size:     st.Size,
		Blksize:  int64(st.Blksize),
		Blocks:   st.Blocks,
		MtimSec:  int64(st.Mtim.Sec),
		MtimNsec: int64(st.Mtim.Nsec),
		CtimSec:  int64(st.Ctim.Sec),
		CtimNsec: int64(st.Ctim.Nsec),
	}
	return s
}

// birthtime fills in Stat.BirthSec/BirthNsec via statx(2)'s STATX_BTIME,
// when the underlying filesystem reports one. Not every Linux filesystem
// does (tmpfs, many network filesystems, and old ext variants don't), so a
// missing STATX_BTIME bit in the reply is treated as "no birthtime",
// leaving the fields zero, the same as a filesystem that never had the
// concept — the caller already tolerates that via stat_t's own lack of a
// birthtime field.
func birthtime(path string, s *Stat) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return
	}
	s.BirthSec = stx.Btime.Sec
	s.BirthNsec = int64(stx.Btime.Nsec)
}
