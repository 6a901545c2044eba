package buffer

import (
	"hash/adler32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func fillRandom(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// Ring-buffer roundtrip.
func TestRoundTrip(t *testing.T) {
	rb := New()
	require.Equal(t, 1024, rb.Capacity())

	rb.WriteBytes([]byte("Hello,World!"))
	require.Equal(t, 12, rb.Size())
	require.Equal(t, 1012, rb.Free())

	scratch := make([]byte, 8)
	n := rb.ReadBytes(scratch)
	require.Equal(t, 8, n)
	require.Equal(t, "Hello,Wo", string(scratch))
	require.Equal(t, 4, rb.Size())

	n = rb.ReadBytes(scratch)
	require.Equal(t, 4, n)
	require.Equal(t, "rld!", string(scratch[:4]))
	require.Equal(t, 0, rb.Size())
}

// Ring-buffer grow.
func TestGrowPreservesContent(t *testing.T) {
	rb := New()
	pattern := fillRandom(1025, 1)
	rb.WriteBytes(pattern)

	require.Equal(t, 1025, rb.Size())
	require.Equal(t, 2048, rb.Capacity(), "capacity should grow to next pow2")

	out := make([]byte, 1025)
	n := rb.ReadBytes(out)
	require.Equal(t, 1025, n)
	require.Equal(t, pattern, out, "content not preserved across grow")
}

func TestPeekDoesNotAdvance(t *testing.T) {
	rb := New()
	rb.WriteBytes([]byte("abcdef"))

	dst := make([]byte, 3)
	n := rb.Peek(0, dst)
	require.Equal(t, 3, n)
	require.Equal(t, "abc", string(dst))
	require.Equal(t, 6, rb.Size(), "peek must not advance read index")

	n = rb.Peek(4, dst)
	require.Equal(t, 2, n, "peek near the end should clamp")

	n = rb.Peek(6, dst)
	require.Equal(t, 0, n, "peek at offset==size should return 0")
}

func TestDiscard(t *testing.T) {
	rb := New()
	rb.WriteBytes([]byte("0123456789"))

	n := rb.Discard(4)
	require.Equal(t, 4, n)
	require.Equal(t, 6, rb.Size())

	n = rb.Discard(100)
	require.Equal(t, 6, n, "discard should clamp to remaining size")
	require.True(t, rb.Empty())
}

func TestCopyTo(t *testing.T) {
	src := New()
	dst := New()
	src.WriteBytes([]byte("payload-bytes"))

	got := src.CopyTo(dst, 7)
	require.Equal(t, 7, got)
	require.Equal(t, 7, dst.Size())

	out := make([]byte, 7)
	dst.ReadBytes(out)
	require.Equal(t, "payload", string(out))
}

func TestNormalizeAfterWrap(t *testing.T) {
	rb := NewSize(16)
	rb.WriteBytes(make([]byte, 12))
	rb.Discard(12)
	rb.WriteBytes([]byte("wrap-me!")) // writes wrap around the 16-byte array

	view := rb.Normalize()
	require.Len(t, view, rb.Size())
	require.Equal(t, []byte("wrap-me!"), view, "normalize did not linearize content")

	// idempotent: calling again changes nothing.
	view2 := rb.Normalize()
	require.Equal(t, view, view2, "normalize is not idempotent")
}

func TestChecksumMatchesAdler32(t *testing.T) {
	rb := New()
	payload := []byte("Hello,World!")
	rb.WriteBytes(payload)

	want := adler32.Checksum(payload)
	require.Equal(t, want, rb.Checksum(0, len(payload)))

	want8 := adler32.Checksum(payload[:8])
	require.Equal(t, want8, rb.Checksum(0, 8))

	want1to9 := adler32.Checksum(payload[1:9])
	require.Equal(t, want1to9, rb.Checksum(1, 8))

	initial := adler32.Checksum(nil)
	require.Equal(t, initial, rb.Checksum(len(payload), 0), "checksum at offset==size should be initial adler")
	require.Equal(t, want, rb.Checksum(0, len(payload)+1), "checksum should clamp n to available bytes")
}

func TestChecksumAcrossWrap(t *testing.T) {
	rb := NewSize(16)
	rb.WriteBytes(make([]byte, 12))
	rb.Discard(12)
	payload := []byte("wraptestdata") // 12 bytes, wraps the 16-byte backing array
	rb.WriteBytes(payload)

	got := rb.Checksum(0, len(payload))
	want := adler32.Checksum(payload)
	require.Equal(t, want, got, "wrapped checksum mismatch")
}

func TestResetKeepsBackingArray(t *testing.T) {
	rb := New()
	rb.WriteBytes([]byte("hello"))
	capBefore := rb.Capacity()

	rb.Reset()

	require.Equal(t, 0, rb.Size())
	require.True(t, rb.Empty())
	require.Equal(t, capBefore, rb.Capacity(), "reset must not release the backing array")
}
