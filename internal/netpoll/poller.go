// Package netpoll provides the three polling backends the reactor can
// sit on: epoll (Linux), kqueue (BSD/macOS), and select (everywhere
// else, including Windows). Each backend implements the same narrow
// Poller interface so the reactor never branches on platform itself;
// the build-tagged variant is chosen once, at construction.
package netpoll

import "time"

// Interest is the subset of {Read, Write} a poller is watching for a
// given file descriptor.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
)

func (i Interest) Has(bit Interest) bool { return i&bit != 0 }

// Poller is the narrow interface every backend satisfies. fd is a raw
// OS descriptor; token is an opaque caller-assigned identifier (the
// reactor passes its EventID here) returned verbatim in Poll's ready
// lists — the poller never interprets it.
type Poller interface {
	// Add starts watching fd for the given interest.
	Add(fd int, token uint64, interest Interest) error
	// Modify changes the watched interest for an already-added fd.
	Modify(fd int, token uint64, interest Interest) error
	// Remove stops watching fd.
	Remove(fd int, token uint64) error
	// Poll blocks for up to timeout (or indefinitely if block is true)
	// and returns the tokens ready for read and for write.
	Poll(timeout time.Duration, block bool) (readReady, writeReady []uint64, err error)
	// Close releases backend resources (the epoll/kqueue fd, etc).
	Close() error
}

// New constructs the best backend available on the current platform:
// epoll on Linux, kqueue on the BSD family and macOS, select elsewhere.
func New() (Poller, error) {
	return newPlatformPoller()
}
