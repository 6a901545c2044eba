//go:build windows

package netpoll

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func newPlatformPoller() (Poller, error) { return NewSelect() }

type selectEntry struct {
	fd       int
	token    uint64
	interest Interest
}

// selectPoller is the Windows backend: winsock select() over the same
// active-channel order cyclone's select looper keeps via its `prev`
// links, since Windows has no epoll/kqueue equivalent cyclone targets
// natively.
type selectPoller struct {
	order   []int
	entries map[int]*selectEntry
}

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
	if len(p.order) == 0 {
		if !block {
			time.Sleep(timeout)
		}
		return nil, nil, nil
	}

	var rfds, wfds windows.FdSet
	for _, fd := range p.order {
		e := p.entries[fd]
		if e.interest.Has(Read) {
			fdSet(&rfds, fd)
		}
		if e.interest.Has(Write) {
			fdSet(&wfds, fd)
		}
	}

	var tv *windows.Timeval
	if !block {
		t := windows.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	n, err := windows.Select(0, &rfds, &wfds, nil, tv)
	if err != nil {
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

func fdSet(set *windows.FdSet, fd int) {
	for i := int32(0); i < set.Count; i++ {
		if int(set.Array[i]) == fd {
			return
		}
	}
	set.Array[set.Count] = uintptr(fd)
	set.Count++
}

func fdIsSet(set *windows.FdSet, fd int) bool {
	for i := int32(0); i < set.Count; i++ {
		if int(set.Array[i]) == fd {
			return true
		}
	}
	return false
}
