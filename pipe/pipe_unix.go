//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

// Package pipe implements cyclone's self-wakeup primitive: two
// non-blocking, close-on-exec endpoints used for the loop's inner
// wakeup channel and for a work thread's message-queue doorbell.
package pipe

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/xtaci/cyclone/clog"
)

// Pipe owns the two ends of an OS pipe, both set non-blocking and
// close-on-exec, mirroring cye_pipe.cpp's Unix constructor.
type Pipe struct {
	readFD  int
	writeFD int
}

// New constructs a pipe. Failure here is a hard, logged fault per §4.2.
func New() *Pipe {
	fds, err := newPipeFDs()
	if err != nil {
		clog.Fatal("create pipe failed", zap.Error(err))
	}
	return &Pipe{readFD: fds[0], writeFD: fds[1]}
}

func newPipeFDs() ([2]int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fds, errors.Wrap(err, "pipe: pipe2")
	}
	return fds, nil
}

// ReadPort and WritePort expose the raw descriptors for registration
// with the event loop's poller.
func (p *Pipe) ReadPort() int  { return p.readFD }
func (p *Pipe) WritePort() int { return p.writeFD }

// Write writes buf to the pipe's write end.
func (p *Pipe) Write(buf []byte) (int, error) {
	n, err := unix.Write(p.writeFD, buf)
	if err != nil {
		return n, errors.Wrap(err, "pipe: write")
	}
	return n, nil
}

// Read reads from the pipe's read end.
func (p *Pipe) Read(buf []byte) (int, error) {
	n, err := unix.Read(p.readFD, buf)
	if err != nil {
		return n, errors.Wrap(err, "pipe: read")
	}
	return n, nil
}

// Close releases both ends.
func (p *Pipe) Close() error {
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return errors.Wrap(err1, "pipe: close read end")
	}
	if err2 != nil {
		return errors.Wrap(err2, "pipe: close write end")
	}
	return nil
}
