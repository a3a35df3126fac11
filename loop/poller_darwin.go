//go:build darwin

package loop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements ioPoller on Darwin/BSD. Grounded on
// eventloop/poller_darwin.go's FastPoller: a kqueue descriptor plus a
// preallocated event buffer, trimmed to the read-only registration the
// wake channel needs.
type kqueuePoller struct {
	kq       int
	mu       sync.RWMutex
	active   map[int]struct{}
	eventBuf [64]unix.Kevent_t
}

func newIOPoller() (ioPoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		kq:     kq,
		active: make(map[int]struct{}),
	}, nil
}

func (p *kqueuePoller) add(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.active[fd] = struct{}{}
	p.mu.Unlock()
	return nil
}

func (p *kqueuePoller) remove(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}
	p.mu.Lock()
	delete(p.active, fd)
	p.mu.Unlock()
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) wait(timeoutMs int) ([]int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1_000_000)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(p.eventBuf[i].Ident))
	}
	return ready, nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}
