//go:build linux

package netpoll

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func newPlatformPoller() (Poller, error) { return newEpoll() }

type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
	tokens map[int]uint64
}

func newEpoll() (*epollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "netpoll: epoll_create1")
	}
	return &epollPoller{
		epfd:   fd,
		events: make([]unix.EpollEvent, 128),
		tokens: make(map[int]uint64),
	}, nil
}

func epollEvents(interest Interest) uint32 {
	var ev uint32
	if interest.Has(Read) {
		ev |= unix.EPOLLIN
	}
	if interest.Has(Write) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) Add(fd int, token uint64, interest Interest) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrap(err, "netpoll: epoll_ctl add")
	}
	p.tokens[fd] = token
	return nil
}

func (p *epollPoller) Modify(fd int, token uint64, interest Interest) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrap(err, "netpoll: epoll_ctl mod")
	}
	p.tokens[fd] = token
	return nil
}

func (p *epollPoller) Remove(fd int, _ uint64) error {
	delete(p.tokens, fd)
	// EPOLL_CTL_DEL's event argument is ignored on Linux >= 2.6.9 but
	// older kernels require a non-nil pointer.
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{}); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
			return nil
		}
		return errors.Wrap(err, "netpoll: epoll_ctl del")
	}
	return nil
}

func (p *epollPoller) Poll(timeout time.Duration, block bool) (readReady, writeReady []uint64, err error) {
	msec := -1
	if !block {
		msec = int(timeout / time.Millisecond)
		if msec < 0 {
			msec = 0
		}
	}
	n, err := unix.EpollWait(p.epfd, p.events, msec)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "netpoll: epoll_wait")
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		token, ok := p.tokens[int(ev.Fd)]
		if !ok {
			continue
		}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			readReady = append(readReady, token)
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			writeReady = append(writeReady, token)
		}
	}
	if n == len(p.events) {
		// grow the scratch buffer so a busy loop doesn't starve later fds
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return readReady, writeReady, nil
}

func (p *epollPoller) Close() error {
	return errors.Wrap(unix.Close(p.epfd), "netpoll: close epoll fd")
}
