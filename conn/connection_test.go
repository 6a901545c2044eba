package conn

import (
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/cyclone/reactor"
)

// socketPairFDs returns two connected, raw TCP socket fds by dialing a
// loopback listener, since net.Pipe() isn't backed by a real fd the
// reactor's poller can watch.
func socketPairFDs(t *testing.T) (aFD, bFD int, peer net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			acceptCh <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server := <-acceptCh

	aFD = fdOf(t, client)
	bFD = fdOf(t, server)
	return aFD, bFD, server
}

func fdOf(t *testing.T, c net.Conn) int {
	t.Helper()
	sc, ok := c.(syscall.Conn)
	require.True(t, ok, "connection does not expose a raw fd")
	raw, err := sc.SyscallConn()
	require.NoError(t, err)
	var fd int
	require.NoError(t, raw.Control(func(h uintptr) { fd = int(h) }))
	return fd
}

// TestConnectionDrainOnShutdown covers sending 64 KiB then immediately
// shutting down: every byte must still reach the peer before EOF.
func TestConnectionDrainOnShutdown(t *testing.T) {
	loop, err := reactor.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	aFD, _, peer := socketPairFDs(t)
	defer peer.Close()

	closed := make(chan State, 1)
	a, err := New(1, aFD, loop, nil)
	require.NoError(t, err)
	a.SetOnClose(func(c *Connection) { closed <- c.State() })

	const payload = 64 * 1024
	data := make([]byte, payload)
	for i := range data {
		data[i] = byte(i)
	}

	read := make(chan int, 1)
	go func() {
		buf := make([]byte, 4096)
		total := 0
		for total < payload {
			peer.SetReadDeadline(time.Now().Add(5 * time.Second))
			n, err := peer.Read(buf)
			total += n
			if err != nil {
				break
			}
		}
		read <- total
	}()

	a.Send(data)
	a.Shutdown()
	require.Containsf(t, []State{Disconnecting, Disconnected}, a.State(),
		"state after shutdown with pending writes")

	deadline := time.After(5 * time.Second)
	for a.State() != Disconnected {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for drain+close, state=%v", a.State())
		default:
			loop.Step(10*time.Millisecond, false)
		}
	}

	select {
	case st := <-closed:
		require.Equal(t, Disconnected, st, "on_close observed state")
	default:
		t.Fatal("on_close was not invoked")
	}

	select {
	case total := <-read:
		require.Equal(t, payload, total, "peer must observe every byte before EOF")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for peer reader to finish")
	}
}

func TestConnectionSendThenRead(t *testing.T) {
	loop, err := reactor.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	aFD, bFD, peer := socketPairFDs(t)
	defer peer.Close()

	var gotB []byte
	done := make(chan struct{})

	a, err := New(1, aFD, loop, nil)
	require.NoError(t, err)
	b, err := New(2, bFD, loop, nil)
	require.NoError(t, err)
	b.SetOnMessage(func(c *Connection) {
		n := c.ReadBuffer().Size()
		buf := make([]byte, n)
		c.ReadBuffer().ReadBytes(buf)
		gotB = append(gotB, buf...)
		if len(gotB) >= 5 {
			close(done)
		}
	})

	a.Send([]byte("hello"))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-done:
			require.Equal(t, "hello", string(gotB))
			return
		case <-deadline:
			t.Fatal("timed out waiting for message delivery")
		default:
			loop.Step(10*time.Millisecond, false)
		}
	}
}
