//go:build linux

package loop

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// createWakeFd opens a kernel counter descriptor (eventfd) that serves as
// both read and write end of the wake channel (spec.md §6: "a kernel
// counter descriptor ... wfd = -1"). Grounded on
// eventloop/wakeup_linux.go's createWakeFd and libuv's uv__async_start
// (original_source/src/unix/async.c).
func createWakeFd() (rfd int, wfd int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, -1, nil
}

// writeWake increments the eventfd counter by one.
func writeWake(wfd, rfd int) error {
	fd := wfd
	if fd == -1 {
		fd = rfd
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(fd, buf[:])
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
}

// drainWake repeatedly reads the eventfd until it returns EAGAIN, matching
// uv__async_io's drain loop.
func drainWake(rfd int) error {
	var buf [8]byte
	for {
		n, err := unix.Read(rfd, buf[:])
		if err == nil && n == len(buf) {
			continue
		}
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
}

func closeWake(rfd, wfd int) {
	if rfd >= 0 {
		_ = unix.Close(rfd)
	}
	if wfd >= 0 && wfd != rfd {
		_ = unix.Close(wfd)
	}
}
