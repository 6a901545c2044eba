package workthread

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkThreadDeliversMessagesInOrder(t *testing.T) {
	wt := New()

	var mu sync.Mutex
	var got []uint16

	wt.SetOnMessage(func(p *Packet) {
		mu.Lock()
		got = append(got, p.ID)
		mu.Unlock()
	})

	require.NoError(t, wt.Start("worker-1"))
	defer wt.Stop()

	for i := uint16(0); i < 50; i++ {
		require.NoErrorf(t, wt.SendMessage(&Packet{ID: i}), "SendMessage(%d)", i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 50 {
			break
		}
		require.Falsef(t, time.Now().After(deadline), "timed out waiting for delivery, got %d/50", n)
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, id := range got {
		require.Equalf(t, i, int(id), "message %d out of order", i)
	}
}

func TestWorkThreadOnStartFailureAborts(t *testing.T) {
	wt := New()
	wt.SetOnStart(func() bool { return false })
	require.NoError(t, wt.Start("worker-abort"))
	wt.Join()
}

func TestWorkThreadSendMessagesBatch(t *testing.T) {
	wt := New()

	done := make(chan struct{})
	var count int
	var mu sync.Mutex
	wt.SetOnMessage(func(p *Packet) {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})

	require.NoError(t, wt.Start("worker-batch"))
	defer wt.Stop()

	batch := []*Packet{{ID: 1}, {ID: 2}, {ID: 3}}
	require.NoError(t, wt.SendMessages(batch))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch delivery")
	}
}
