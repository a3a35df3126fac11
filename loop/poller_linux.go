//go:build linux

package loop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollPoller implements ioPoller on Linux. Grounded on
// eventloop/poller_linux.go's FastPoller: a fixed-capacity fd table guarded
// by an RWMutex plus a preallocated epoll event buffer, trimmed to the
// read-only registration the wake channel needs.
type epollPoller struct {
	epfd     int
	mu       sync.RWMutex
	active   map[int]struct{}
	eventBuf [64]unix.EpollEvent
}

func newIOPoller() (ioPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:   fd,
		active: make(map[int]struct{}),
	}, nil
}

func (p *epollPoller) add(fd int) error {
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.mu.Lock()
	p.active[fd] = struct{}{}
	p.mu.Unlock()
	return nil
}

func (p *epollPoller) remove(fd int) error {
	p.mu.Lock()
	delete(p.active, fd)
	p.mu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(timeoutMs int) ([]int, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(p.eventBuf[i].Fd))
	}
	return ready, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
