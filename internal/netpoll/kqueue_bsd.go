//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package netpoll

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func newPlatformPoller() (Poller, error) { return newKqueue() }

type kqueuePoller struct {
	kq     int
	events []unix.Kevent_t
	tokens map[int]uint64
}

func newKqueue() (*kqueuePoller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "netpoll: kqueue")
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "netpoll: kqueue fcntl cloexec")
	}
	return &kqueuePoller{
		kq:     fd,
		events: make([]unix.Kevent_t, 128),
		tokens: make(map[int]uint64),
	}, nil
}

func (p *kqueuePoller) apply(fd int, interest Interest, add bool) error {
	var changes []unix.Kevent_t
	readFlag := uint16(unix.EV_DELETE)
	writeFlag := uint16(unix.EV_DELETE)
	if add {
		readFlag = unix.EV_ADD | unix.EV_ENABLE
		writeFlag = unix.EV_ADD | unix.EV_ENABLE
	}
	if !interest.Has(Read) {
		readFlag = unix.EV_ADD | unix.EV_DISABLE
	}
	if !interest.Has(Write) {
		writeFlag = unix.EV_ADD | unix.EV_DISABLE
	}
	changes = append(changes,
		unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: readFlag},
		unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: writeFlag},
	)
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, token uint64, interest Interest) error {
	if err := p.apply(fd, interest, true); err != nil {
		return errors.Wrap(err, "netpoll: kevent add")
	}
	p.tokens[fd] = token
	return nil
}

func (p *kqueuePoller) Modify(fd int, token uint64, interest Interest) error {
	if err := p.apply(fd, interest, true); err != nil {
		return errors.Wrap(err, "netpoll: kevent modify")
	}
	p.tokens[fd] = token
	return nil
}

func (p *kqueuePoller) Remove(fd int, _ uint64) error {
	delete(p.tokens, fd)
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// Deleting a filter that was never added returns ENOENT; both
	// filters are always present together in apply(), so ignore it.
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	if err != nil && !errors.Is(err, unix.ENOENT) {
		return errors.Wrap(err, "netpoll: kevent delete")
	}
	return nil
}

func (p *kqueuePoller) Poll(timeout time.Duration, block bool) (readReady, writeReady []uint64, err error) {
	var ts *unix.Timespec
	if !block {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "netpoll: kevent wait")
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		token, ok := p.tokens[int(ev.Ident)]
		if !ok {
			continue
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			readReady = append(readReady, token)
		case unix.EVFILT_WRITE:
			writeReady = append(writeReady, token)
		}
	}
	if n == len(p.events) {
		p.events = make([]unix.Kevent_t, len(p.events)*2)
	}
	return readReady, writeReady, nil
}

func (p *kqueuePoller) Close() error {
	return errors.Wrap(unix.Close(p.kq), "netpoll: close kqueue fd")
}
