//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package buffer

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func segLen(segs [][]byte) int {
	n := 0
	for _, s := range segs {
		n += len(s)
	}
	return n
}

// ReadFromSocket reads as much as available from fd using a vectored
// read against the buffer's (up to two) contiguous free segments. If
// expand is true and the buffer is full after a read, it grows and
// keeps reading. Returns total bytes read (0 on EOF, -1 if nothing was
// available and nothing had already been read this call).
func (r *RingBuffer) ReadFromSocket(fd int, expand bool) (int, error) {
	total := 0
	for {
		if r.Free() == 0 {
			if !expand {
				break
			}
			r.grow(len(r.buf) + 1)
		}
		segs := r.freeSegments()
		if len(segs) == 0 {
			break
		}
		n, err := unix.Readv(fd, segs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				if total == 0 {
					return -1, nil
				}
				return total, nil
			}
			return total, errors.Wrap(err, "buffer: readv")
		}
		if n == 0 {
			return total, nil
		}
		r.write += uint64(n)
		total += n
		if n < segLen(segs) || !expand {
			break
		}
	}
	return total, nil
}

// WriteToSocket writes as much as possible from the (up to two)
// contiguous filled segments via a vectored write, advancing the read
// index by the bytes actually written.
func (r *RingBuffer) WriteToSocket(fd int) (int, error) {
	segs := r.filledSegments()
	if len(segs) == 0 {
		return 0, nil
	}
	n, err := unix.Writev(fd, segs)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "buffer: writev")
	}
	r.read += uint64(n)
	return n, nil
}
