// Package buffer implements cyclone's power-of-two ring buffer: a
// single-producer/single-consumer byte queue that grows on demand and
// reads/writes sockets directly via vectored I/O. Callers serialize
// access externally — the buffer itself holds no lock, matching
// cyn_connection.cpp's use of RingBuf guarded by the connection's own
// write-buffer mutex.
package buffer

import (
	"hash/adler32"
)

// DefaultCapacity is the capacity a RingBuffer made by New starts with,
// mirroring RingBuf::kDefaultCapacity in the original.
const DefaultCapacity = 1024

// RingBuffer is a growable circular byte buffer. The zero value is not
// ready to use; construct with New or NewSize.
type RingBuffer struct {
	buf   []byte
	read  uint64 // free-running read counter
	write uint64 // free-running write counter
}

// New returns an empty buffer at DefaultCapacity.
func New() *RingBuffer {
	return NewSize(DefaultCapacity)
}

// NewSize returns an empty buffer whose capacity is the next power of
// two at least `capacity`.
func NewSize(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]byte, nextPow2(capacity))}
}

// Capacity returns the current backing array length, always a power
// of two.
func (r *RingBuffer) Capacity() int { return len(r.buf) }

// Size returns the number of live bytes currently queued.
func (r *RingBuffer) Size() int { return int(r.write - r.read) }

// Free returns the number of bytes that can be written before a grow
// is required.
func (r *RingBuffer) Free() int { return len(r.buf) - r.Size() }

func (r *RingBuffer) Empty() bool { return r.write == r.read }
func (r *RingBuffer) Full() bool  { return r.Size() == len(r.buf) }

// Reset restores size=0 without releasing the backing array, mirroring
// RingBuf::reset().
func (r *RingBuffer) Reset() {
	r.read = 0
	r.write = 0
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// grow allocates a new power-of-two backing array sized to hold at
// least size()+extra bytes and repacks the live content at offset 0.
// The new capacity is next_pow2(size+extra); when size+extra exceeds
// the old capacity, as it does for every caller, that is at least twice
// the old capacity (1024 grows to 2048 for a 1025-byte write).
func (r *RingBuffer) grow(extra int) {
	size := r.Size()
	newCap := nextPow2(size + extra)
	nb := make([]byte, newCap)
	r.linearizeInto(nb)
	r.buf = nb
	r.read = 0
	r.write = uint64(size)
}

// linearizeInto copies the live bytes, in logical order, into dst[0:size].
func (r *RingBuffer) linearizeInto(dst []byte) {
	size := r.Size()
	if size == 0 {
		return
	}
	start := int(r.read) & (len(r.buf) - 1)
	n := copy(dst, r.buf[start:])
	if n < size {
		copy(dst[n:], r.buf[:size-n])
	}
}

// WriteBytes copies src[:n] in, growing the buffer first if there is
// not enough free space. Always succeeds absent OOM.
func (r *RingBuffer) WriteBytes(src []byte) {
	n := len(src)
	if n == 0 {
		return
	}
	if r.Free() < n {
		r.grow(n)
	}
	mask := len(r.buf) - 1
	start := int(r.write) & mask
	c := copy(r.buf[start:], src)
	if c < n {
		copy(r.buf, src[c:])
	}
	r.write += uint64(n)
}

// ReadBytes copies at most min(len(dst), Size()) bytes out and
// advances the read index, returning the count copied.
func (r *RingBuffer) ReadBytes(dst []byte) int {
	n := r.Peek(0, dst)
	r.read += uint64(n)
	return n
}

// Peek copies without advancing the read index; copies
// min(len(dst), size-offset) bytes, zero if offset >= size.
func (r *RingBuffer) Peek(offset int, dst []byte) int {
	size := r.Size()
	if offset >= size || offset < 0 {
		return 0
	}
	avail := size - offset
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}
	mask := len(r.buf) - 1
	start := (int(r.read) + offset) & mask
	c := copy(dst, r.buf[start:])
	if c < n {
		copy(dst[c:], r.buf[:n-c])
	}
	return n
}

// Discard advances the read index by min(n, Size()), returning that
// count, without copying any bytes out.
func (r *RingBuffer) Discard(n int) int {
	size := r.Size()
	if n > size {
		n = size
	}
	if n < 0 {
		n = 0
	}
	r.read += uint64(n)
	return n
}

// CopyTo moves up to n bytes from r into other, equivalent to
// ReadBytes into other.WriteBytes, returning the actual count moved.
func (r *RingBuffer) CopyTo(other *RingBuffer, n int) int {
	if n <= 0 {
		return 0
	}
	size := r.Size()
	if n > size {
		n = size
	}
	if n == 0 {
		return 0
	}
	tmp := make([]byte, n)
	got := r.ReadBytes(tmp)
	other.WriteBytes(tmp[:got])
	return got
}

// Normalize rotates wrapped data so it starts at index 0 and returns a
// view onto [0, size). O(1) when the data already starts at index 0,
// O(size) otherwise (contiguous data at a later offset is slid down too).
// Idempotent: calling it twice in a row is a no-op the second time.
func (r *RingBuffer) Normalize() []byte {
	size := r.Size()
	if size == 0 {
		r.read, r.write = 0, 0
		return r.buf[:0]
	}
	mask := len(r.buf) - 1
	start := int(r.read) & mask
	if start == 0 {
		return r.buf[:size]
	}
	if start+size <= len(r.buf) {
		// contiguous but not at offset 0: slide it down in place.
		copy(r.buf, r.buf[start:start+size])
		r.read, r.write = 0, uint64(size)
		return r.buf[:size]
	}
	rotated := make([]byte, size)
	r.linearizeInto(rotated)
	copy(r.buf, rotated)
	r.read, r.write = 0, uint64(size)
	return r.buf[:size]
}

// Checksum computes the Adler-32 of the min(n, size-offset) bytes
// starting at offset, returning the initial Adler value (1) if the
// window is empty or out of range.
func (r *RingBuffer) Checksum(offset, n int) uint32 {
	h := adler32.New()
	size := r.Size()
	if offset < 0 || offset >= size || n <= 0 {
		return initialAdler()
	}
	avail := size - offset
	if n > avail {
		n = avail
	}
	mask := len(r.buf) - 1
	start := (int(r.read) + offset) & mask
	remaining := n
	pos := start
	for remaining > 0 {
		end := pos + remaining
		if end > len(r.buf) {
			end = len(r.buf)
		}
		chunk := r.buf[pos:end]
		h.Write(chunk)
		remaining -= len(chunk)
		pos = 0
	}
	return h.Sum32()
}

func initialAdler() uint32 {
	return adler32.New().Sum32()
}

// filledSegments returns the up-to-two contiguous byte slices backing the
// live region, in logical order, for vectored I/O against a socket.
func (r *RingBuffer) filledSegments() [][]byte {
	size := r.Size()
	if size == 0 {
		return nil
	}
	mask := len(r.buf) - 1
	start := int(r.read) & mask
	if start+size <= len(r.buf) {
		return [][]byte{r.buf[start : start+size]}
	}
	first := r.buf[start:]
	second := r.buf[:size-len(first)]
	return [][]byte{first, second}
}

// freeSegments returns the up-to-two contiguous free byte slices,
// in logical order, ready to be filled by a vectored read.
func (r *RingBuffer) freeSegments() [][]byte {
	free := r.Free()
	if free == 0 {
		return nil
	}
	mask := len(r.buf) - 1
	start := int(r.write) & mask
	if start+free <= len(r.buf) {
		return [][]byte{r.buf[start : start+free]}
	}
	first := r.buf[start:]
	second := r.buf[:free-len(first)]
	return [][]byte{first, second}
}
