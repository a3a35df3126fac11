//go:build darwin

package fspoll

import (
	"os"
	"syscall"
)

// extractStat pulls the fields statPath needs out of a Darwin stat_t.
// Darwin's stat_t carries st_flags, st_gen, and a real st_birthtimespec, so
// (unlike stat_linux.go, which needs a separate statx call for birthtime
// and has no flags/gen) every field comes straight from stat_t here.
func extractStat(fi os.FileInfo) Stat {
	st := fi.Sys().(*syscall.Stat_t)
	return Stat{
		Dev:       uint64(st.Dev),
		Ino:       st.Ino,
		Mode:      uint32(st.Mode),
		Nlink:     uint64(st.Nlink),
		Uid:       st.Uid,
		Gid:       st.Gid,
		Rdev:      uint64(st.Rdev),
		Size:      st.Size,
		Blksize:   int64(st.Blksize),
		Blocks:    st.Blocks,
		Flags:     st.Flags,
		Gen:       st.Gen,
		MtimSec:   st.Mtimespec.Sec,
		MtimNsec:  st.Mtimespec.Nsec,
		CtimSec:   st.Ctimespec.Sec,
		CtimNsec:  st.Ctimespec.Nsec,
		BirthSec:  st.Birthtimespec.Sec,
		BirthNsec: st.Birthtimespec.Nsec,
	}
}

// birthtime is a no-op on Darwin: extractStat already filled BirthSec/
// BirthNsec from st_birthtimespec, a real field on this platform's
// stat_t unlike Linux's, which needs a separate statx(2) call.
func birthtime(path string, s *Stat) {}
