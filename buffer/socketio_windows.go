//go:build windows

package buffer

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func segLen(segs [][]byte) int {
	n := 0
	for _, s := range segs {
		n += len(s)
	}
	return n
}

// ReadFromSocket has the same contract as the unix build but reads
// each contiguous free segment with a plain recv(); a WSARecv-based
// scatter read isn't worth the extra syscall surface here, so a
// sequential fallback keeps the two builds behaviorally identical
// without pulling in cgo.
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
		progressed := false
		for _, seg := range segs {
			n, err := windows.Read(windows.Handle(fd), seg)
			if err != nil {
				if errors.Is(err, windows.WSAEWOULDBLOCK) {
					if total == 0 {
						return -1, nil
					}
					return total, nil
				}
				return total, errors.Wrap(err, "buffer: recv")
			}
			if n == 0 {
				return total, nil
			}
			r.write += uint64(n)
			total += n
			progressed = true
			if n < len(seg) {
				return total, nil
			}
		}
		if !progressed || !expand {
			break
		}
	}
	return total, nil
}

// WriteToSocket mirrors ReadFromSocket's sequential fallback.
func (r *RingBuffer) WriteToSocket(fd int) (int, error) {
	segs := r.filledSegments()
	total := 0
	for _, seg := range segs {
		n, err := windows.Write(windows.Handle(fd), seg)
		if err != nil {
			if errors.Is(err, windows.WSAEWOULDBLOCK) {
				break
			}
			return total, errors.Wrap(err, "buffer: send")
		}
		r.read += uint64(n)
		total += n
		if n < len(seg) {
			break
		}
	}
	return total, nil
}
