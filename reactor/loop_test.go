package reactor

import (
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/cyclone/pipe"
)

// register/delete cycle and table doubling.
func TestTableRegisterDeleteCycle(t *testing.T) {
	tb := newTable()
	require.Equal(t, defaultChannelSlots, tb.size(), "initial table size")

	id := tb.alloc()
	require.Equal(t, 0, id.slot(), "first alloc slot")
	require.EqualValues(t, 1, tb.freeHead, "free head after first alloc")

	tb.free(id)
	require.EqualValues(t, 0, tb.activeCount, "activeCount after free")
	require.EqualValues(t, 0, tb.freeHead, "free head after delete, slot 0 back at head")

	tb2 := newTable()
	var last EventID
	for i := 0; i < 17; i++ {
		last = tb2.alloc()
	}
	require.Equal(t, 32, tb2.size(), "size after 17 registers, doubled")
	require.Equal(t, 16, last.slot(), "17th alloc slot")
}

func TestTableLookupRejectsStaleGeneration(t *testing.T) {
	tb := newTable()
	id := tb.alloc()
	tb.free(id)
	_, ok := tb.lookup(id)
	require.False(t, ok, "lookup of a freed, generation-stale id should fail")

	next := tb.alloc()
	require.Equal(t, id.slot(), next.slot(), "expected slot reuse")
	require.NotEqual(t, id.generation(), next.generation(), "reused slot must bump its generation")
}

// 100 pipe pairs, write to 10 at random from
// another goroutine, confirm the loop dispatches exactly those reads.
func TestLoopDispatchesReadyPipes(t *testing.T) {
	const pairs = 100
	const writers = 10

	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	pipes := make([]*pipe.Pipe, pairs)
	received := make([][]byte, pairs)
	done := make(chan int, writers)

	for i := 0; i < pairs; i++ {
		p := pipe.New()
		pipes[i] = p
		idx := i
		_, err := loop.RegisterIO(p.ReadPort(), Read, func(EventID) {
			buf := make([]byte, 8)
			n, err := p.Read(buf)
			if err == nil && n == 8 {
				received[idx] = buf
				done <- idx
			}
		}, nil, nil)
		require.NoErrorf(t, err, "RegisterIO(%d)", i)
	}

	perm := rand.New(rand.NewSource(1)).Perm(pairs)[:writers]
	expected := make(map[int]uint64, writers)
	go func() {
		for _, idx := range perm {
			var v uint64 = uint64(idx)*7919 + 17
			expected[idx] = v
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], v)
			pipes[idx].Write(buf[:])
			time.Sleep(time.Millisecond)
		}
	}()

	deadline := time.After(5 * time.Second)
	gotCount := 0
	for gotCount < writers {
		select {
		case <-done:
			gotCount++
		case <-deadline:
			t.Fatalf("timed out waiting for dispatched reads, got %d/%d", gotCount, writers)
		default:
			loop.Step(10*time.Millisecond, false)
		}
	}

	for idx, want := range expected {
		require.NotNilf(t, received[idx], "pipe %d: expected a dispatched read, got none", idx)
		got := binary.LittleEndian.Uint64(received[idx])
		require.Equalf(t, want, got, "pipe %d value mismatch", idx)
	}
	for i := 0; i < pairs; i++ {
		if _, written := expected[i]; !written {
			require.Nilf(t, received[i], "pipe %d received data but was never written to", i)
		}
	}
}

func TestPushStopRequestDedupesInnerPipe(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	loop.PushStopRequest()
	loop.PushStopRequest()
	loop.PushStopRequest()

	require.True(t, loop.IsQuitPending(), "expected quit pending after PushStopRequest")

	var buf [8]byte
	n, err := loop.inner.Read(buf[:])
	require.NoError(t, err)
	require.Equal(t, 1, n, "three stop requests should leave exactly one byte in the inner pipe")

	require.NoError(t, loop.Step(10*time.Millisecond, false))
}
