//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || aix || solaris

package netpoll

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// selectEntry is one row of the backend's active-channel list. cyclone's
// C++ select looper threads this through the channel struct's `prev`
// field directly; here it's a small side table instead, since Go's
// channel table in the reactor package has no reason to carry a field
// only the select backend needs.
type selectEntry struct {
	fd       int
	token    uint64
	interest Interest
}

// selectPoller implements Poller with the POSIX select() call. It is
// built on every unix-family platform and can be constructed directly
// with NewSelect even on a Linux/epoll host, and is the platform
// default on the few unix variants without
// epoll/kqueue (aix, solaris — see select_fallback_unix.go).
type selectPoller struct {
	order   []int // fd registration order, standing in for cyclone's linked list
	entries map[int]*selectEntry
}

// NewSelect constructs the select backend explicitly, regardless of
// platform default.
func NewSelect() (Poller, error) {
	return &selectPoller{entries: make(map[int]*selectEntry)}, nil
}

func (p *selectPoller) Add(fd int, token uint64, interest Interest) error {
	if _, exists := p.entries[fd]; !exists {
		p.order = append(p.order, fd)
	}
	p.entries[fd] = &selectEntry{fd: fd, token: token, interest: interest}
	return nil
}

func (p *selectPoller) Modify(fd int, token uint64, interest Interest) error {
	e, ok := p.entries[fd]
	if !ok {
		return p.Add(fd, token, interest)
	}
	e.token = token
	e.interest = interest
	return nil
}

func (p *selectPoller) Remove(fd int, _ uint64) error {
	delete(p.entries, fd)
	for i, f := range p.order {
		if f == fd {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

func (p *selectPoller) Poll(timeout time.Duration, block bool) (readReady, writeReady []uint64, err error) {
	var rfds, wfds unix.FdSet
	maxFD := -1
	for _, fd := range p.order {
		e := p.entries[fd]
		if e.interest.Has(Read) {
			fdSet(&rfds, fd)
		}
		if e.interest.Has(Write) {
			fdSet(&wfds, fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}
	if maxFD < 0 {
		// nothing registered; still honor the requested wait so timer
		// channels (themselves just pipes registered for Read) keep firing.
		if !block {
			time.Sleep(timeout)
		}
		return nil, nil, nil
	}

	var tv *unix.Timeval
	if !block {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	n, err := unix.Select(maxFD+1, &rfds, &wfds, nil, tv)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "netpoll: select")
	}
	if n == 0 {
		return nil, nil, nil
	}
	for _, fd := range p.order {
		e := p.entries[fd]
		if e.interest.Has(Read) && fdIsSet(&rfds, fd) {
			readReady = append(readReady, e.token)
		}
		if e.interest.Has(Write) && fdIsSet(&wfds, fd) {
			writeReady = append(writeReady, e.token)
		}
	}
	return readReady, writeReady, nil
}

func (p *selectPoller) Close() error { return nil }

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= int64(1) << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(int64(1)<<(uint(fd)%64)) != 0
}
