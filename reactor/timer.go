package reactor

import (
	"container/heap"
	"time"

	"github.com/xtaci/cyclone/pipe"
)

// timerEntry is one scheduled timer: its next deadline, its interval
// for rearming, and the pipe its "tick" is delivered through. A timer
// pairs a pipe endpoint with a periodic kick — here the kick comes from
// this scheduler's own goroutine rather than a native timerfd/kqueue
// timer filter or a Windows waitable timer, so the same mechanism works
// unchanged across every netpoll backend (see DESIGN.md for why this is
// a single Loop-level heap rather than one per backend).
type timerEntry struct {
	id       EventID
	deadline time.Time
	interval time.Duration
	pipe     *pipe.Pipe
	index    int // heap.Interface bookkeeping
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerScheduler runs one goroutine per Loop that sleeps until the
// nearest timer deadline and writes a single byte to that timer's pipe
// when it fires, then rearms it. Add/Remove are safe to call from any
// goroutine; they hand off to the scheduler goroutine over a channel
// so the heap itself needs no lock.
type timerScheduler struct {
	add    chan *timerEntry
	remove chan EventID
	stop   chan struct{}
}

func newTimerScheduler() *timerScheduler {
	s := &timerScheduler{
		add:    make(chan *timerEntry),
		remove: make(chan EventID),
		stop:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *timerScheduler) run() {
	h := &timerHeap{}
	heap.Init(h)
	byID := make(map[EventID]*timerEntry)

	var timer *time.Timer
	armed := false

	rearm := func() {
		if armed {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			armed = false
		}
		if h.Len() == 0 {
			return
		}
		next := (*h)[0]
		d := time.Until(next.deadline)
		if d < 0 {
			d = 0
		}
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}
		armed = true
	}

	var timerC <-chan time.Time
	for {
		if armed {
			timerC = timer.C
		} else {
			timerC = nil
		}
		select {
		case <-s.stop:
			return
		case e := <-s.add:
			heap.Push(h, e)
			byID[e.id] = e
			rearm()
		case id := <-s.remove:
			if e, ok := byID[id]; ok {
				heap.Remove(h, e.index)
				delete(byID, id)
				rearm()
			}
		case <-timerC:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].deadline.After(now) {
				e := (*h)[0]
				e.pipe.Write([]byte{1})
				e.deadline = now.Add(e.interval)
				heap.Fix(h, 0)
			}
			rearm()
		}
	}
}

func (s *timerScheduler) Add(e *timerEntry) { s.add <- e }
func (s *timerScheduler) Remove(id EventID) { s.remove <- id }
func (s *timerScheduler) Close()            { close(s.stop) }
