// Package workthread implements cyclone's WorkThread: a goroutine that
// owns its own reactor.Loop and drains an MPSC message queue through the
// loop's ordinary read dispatch, the same pattern cye_work_thread.cpp
// uses to fold message delivery into the single-threaded event loop
// instead of giving every producer direct access to consumer state.
package workthread

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/xtaci/cyclone/pipe"
	"github.com/xtaci/cyclone/queue"
	"github.com/xtaci/cyclone/reactor"
)

// StartFunc runs once on the work thread's own goroutine before it
// enters its loop; returning false aborts startup.
type StartFunc func() bool

// MessageFunc handles one dequeued Packet, called on the work thread's
// own goroutine.
type MessageFunc func(*Packet)

// WorkThread is a named goroutine with its own reactor.Loop, reachable
// from any other goroutine via SendMessage. Matches cye_work_thread.h.
type WorkThread struct {
	name string

	onStart   StartFunc
	onMessage MessageFunc

	mu       sync.Mutex
	loop     *reactor.Loop
	notifier *pipe.Pipe
	queue    *queue.Queue[*Packet]

	ready chan struct{}
	done  chan struct{}
}

// New constructs an unstarted WorkThread.
func New() *WorkThread {
	return &WorkThread{
		queue: queue.New[*Packet](),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// SetOnStart installs the callback run once the work goroutine's loop
// exists but before it starts dispatching.
func (w *WorkThread) SetOnStart(fn StartFunc) { w.onStart = fn }

// SetOnMessage installs the callback invoked for every message popped
// off the queue, on the work thread's own goroutine.
func (w *WorkThread) SetOnMessage(fn MessageFunc) { w.onMessage = fn }

// Looper returns the work thread's reactor.Loop once Start has
// completed its handshake; nil before that.
func (w *WorkThread) Looper() *reactor.Loop {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loop
}

// Name returns the work thread's name, safe to call from any goroutine.
func (w *WorkThread) Name() string { return w.name }

// Start launches the work thread's goroutine and blocks until its loop
// is constructed and registered — mirroring cye_work_thread.cpp's
// busy-wait on m_ready, but implemented with a channel handshake
// instead of a spin loop.
func (w *WorkThread) Start(name string) error {
	w.name = name
	notifier := pipe.New()

	w.mu.Lock()
	w.notifier = notifier
	w.mu.Unlock()

	go w.run()

	<-w.ready
	return nil
}

func (w *WorkThread) run() {
	defer close(w.done)

	loop, err := reactor.NewLoop()
	if err != nil {
		close(w.ready)
		return
	}

	if _, err := loop.RegisterIO(w.notifier.ReadPort(), reactor.Read, w.onNotify, nil, nil); err != nil {
		loop.Close()
		close(w.ready)
		return
	}

	w.mu.Lock()
	w.loop = loop
	w.mu.Unlock()

	close(w.ready)

	if w.onStart != nil && !w.onStart() {
		loop.Close()
		return
	}

	loop.Loop()
	loop.Close()
}

func (w *WorkThread) onNotify(reactor.EventID) {
	var buf [4]byte
	for {
		n, err := w.notifier.Read(buf[:])
		if err != nil || n < 4 {
			return
		}
		count := binary.LittleEndian.Uint32(buf[:])
		for i := uint32(0); i < count; i++ {
			pkt, ok := w.queue.Pop()
			if !ok {
				break
			}
			if w.onMessage != nil {
				w.onMessage(pkt)
			}
		}
	}
}

// SendMessage enqueues pkt and wakes the work thread, safe to call
// from any goroutine.
func (w *WorkThread) SendMessage(pkt *Packet) error {
	w.mu.Lock()
	notifier := w.notifier
	w.mu.Unlock()
	if notifier == nil {
		return errors.New("workthread: send before start")
	}
	w.queue.Push(pkt)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], 1)
	_, err := notifier.Write(buf[:])
	return errors.Wrap(err, "workthread: send message")
}

// SendMessages enqueues a batch of packets as a single wakeup, the Go
// analogue of cye_work_thread.cpp's counted sendMessage overload.
func (w *WorkThread) SendMessages(pkts []*Packet) error {
	if len(pkts) == 0 {
		return nil
	}
	w.mu.Lock()
	notifier := w.notifier
	w.mu.Unlock()
	if notifier == nil {
		return errors.New("workthread: send before start")
	}
	for _, pkt := range pkts {
		w.queue.Push(pkt)
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(len(pkts)))
	_, err := notifier.Write(buf[:])
	return errors.Wrap(err, "workthread: send messages")
}

// Stop asks the work thread's loop to exit and waits for its goroutine
// to return.
func (w *WorkThread) Stop() {
	w.mu.Lock()
	loop := w.loop
	w.mu.Unlock()
	if loop == nil {
		return
	}
	loop.PushStopRequest()
	<-w.done
}

// Join waits for the work thread's goroutine to finish, without asking
// it to stop.
func (w *WorkThread) Join() { <-w.done }
