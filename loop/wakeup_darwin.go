//go:build darwin

package loop

import "golang.org/x/sys/unix"

// createWakeFd opens a self-pipe: kqueue has no eventfd equivalent, so the
// wake channel falls back to a pipe, matching eventloop/wakeup_darwin.go
// and libuv's uv__async_start pipe branch.
func createWakeFd() (rfd int, wfd int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// writeWake writes a single byte into the pipe, matching uv_async_send's
// pipe write path.
func writeWake(wfd, rfd int) error {
	for {
		_, err := unix.Write(wfd, []byte{0})
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

// drainWake reads and discards bytes until the pipe is empty.
func drainWake(rfd int) error {
	var buf [64]byte
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
