package reactor

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xtaci/cyclone/clog"
	"github.com/xtaci/cyclone/internal/netpoll"
	"github.com/xtaci/cyclone/internal/sysapi"
	"github.com/xtaci/cyclone/pipe"
)

// defaultPollTimeout is the timeout Loop hands to Step. Loop also sets
// block, and every netpoll backend ignores the timeout when block is
// set, so each Loop iteration waits with no deadline until some channel
// is ready: an I/O fd, a timer's pipe, or the inner pipe that
// PushStopRequest writes to.
const defaultPollTimeout = 100 * time.Millisecond

// Loop is a single-threaded, readiness-based event loop: one goroutine
// calls Loop or repeatedly calls Step, registers fds and timers through
// RegisterIO/RegisterTimer, and every other goroutine may only call
// PushStopRequest or Send on a channel already wired to a work queue.
// Matches cye_looper.h's Looper one-to-one.
type Loop struct {
	poller netpoll.Poller
	table  *table
	timers *timerScheduler
	inner  *pipe.Pipe

	ownerSet int32
	ownerID  int64

	stopPending  int32
	innerTouched int32

	loopCounts uint64

	innerTimerID EventID
}

// NewLoop constructs a Loop with a fresh poller, channel table, and
// inner wakeup pipe, the Go analogue of cyclone's Looper constructor
// wiring its self-pipe into channel 0.
func NewLoop() (*Loop, error) {
	poller, err := netpoll.New()
	if err != nil {
		return nil, errors.Wrap(err, "reactor: construct poller")
	}
	l := &Loop{
		poller: poller,
		table:  newTable(),
		timers: newTimerScheduler(),
		inner:  pipe.New(),
	}
	id := l.table.alloc()
	c, _ := l.table.lookup(id)
	c.fd = l.inner.ReadPort()
	c.interest = Read
	c.onRead = l.handleInnerPipe
	if err := l.poller.Add(c.fd, uint64(id), Read); err != nil {
		return nil, errors.Wrap(err, "reactor: register inner pipe")
	}
	l.innerTimerID = id
	return l, nil
}

func (l *Loop) handleInnerPipe(EventID) {
	var buf [64]byte
	for {
		if _, err := l.inner.Read(buf[:]); err != nil {
			return
		}
	}
}

// bindOwner captures the calling goroutine as this loop's owner the
// first time Loop or Step runs. The original's owner-thread assertion
// only ran in debug builds; this library carries no separate
// debug/release build, so the check always runs.
func (l *Loop) bindOwner() {
	if atomic.CompareAndSwapInt32(&l.ownerSet, 0, 1) {
		atomic.StoreInt64(&l.ownerID, sysapi.CurrentGoroutineID())
	}
}

func (l *Loop) assertOwner(who string) {
	if atomic.LoadInt32(&l.ownerSet) == 0 {
		return
	}
	if got := sysapi.CurrentGoroutineID(); got != atomic.LoadInt64(&l.ownerID) {
		clog.Fatal("reactor: called off the loop goroutine",
			zap.String("call", who), zap.Int64("owner", l.ownerID), zap.Int64("caller", got))
	}
}

// RegisterIO adds fd to the loop with the given interest and read/write
// callbacks, returning its EventID. Must be called from the loop's own
// goroutine.
func (l *Loop) RegisterIO(fd int, interest Interest, onRead, onWrite func(EventID), param interface{}) (EventID, error) {
	l.assertOwner("RegisterIO")
	id := l.table.alloc()
	c, _ := l.table.lookup(id)
	c.fd = fd
	c.interest = interest
	c.onRead = onRead
	c.onWrite = onWrite
	c.param = param
	if err := l.poller.Add(fd, uint64(id), netpoll.Interest(interest)); err != nil {
		l.table.free(id)
		return InvalidEventID, errors.Wrap(err, "reactor: register io")
	}
	return id, nil
}

// RegisterTimer creates a repeating timer channel firing every interval,
// delivered as a read-ready callback the same way any other fd is.
func (l *Loop) RegisterTimer(interval time.Duration, onFire func(EventID), param interface{}) (EventID, error) {
	l.assertOwner("RegisterTimer")
	p := pipe.New()
	id := l.table.alloc()
	c, _ := l.table.lookup(id)
	c.fd = p.ReadPort()
	c.interest = Read
	c.timer = true
	c.param = param
	c.onRead = func(eid EventID) {
		var buf [64]byte
		p.Read(buf[:])
		onFire(eid)
	}
	if err := l.poller.Add(c.fd, uint64(id), Read); err != nil {
		l.table.free(id)
		return InvalidEventID, errors.Wrap(err, "reactor: register timer")
	}
	l.timers.Add(&timerEntry{id: id, deadline: time.Now().Add(interval), interval: interval, pipe: p})
	return id, nil
}

// DeleteEvent removes a channel from the loop, releasing its poller
// registration and table slot.
func (l *Loop) DeleteEvent(id EventID) error {
	l.assertOwner("DeleteEvent")
	c, ok := l.table.lookup(id)
	if !ok {
		return errors.New("reactor: delete of unknown or stale event id")
	}
	if c.timer {
		l.timers.Remove(id)
	}
	err := l.poller.Remove(c.fd, uint64(id))
	l.table.free(id)
	if err != nil {
		return errors.Wrap(err, "reactor: delete event")
	}
	return nil
}

func (l *Loop) modify(id EventID) error {
	c, ok := l.table.lookup(id)
	if !ok {
		return errors.New("reactor: modify of unknown or stale event id")
	}
	return errors.Wrap(l.poller.Modify(c.fd, uint64(id), netpoll.Interest(c.interest)), "reactor: modify")
}

// EnableRead/EnableWrite/DisableRead/DisableWrite/DisableAll toggle a
// channel's interest mask in place, per cyclone's enableReading /
// disableWriting family.
func (l *Loop) EnableRead(id EventID) error  { return l.setInterest(id, Read, true) }
func (l *Loop) EnableWrite(id EventID) error { return l.setInterest(id, Write, true) }
func (l *Loop) DisableRead(id EventID) error { return l.setInterest(id, Read, false) }
func (l *Loop) DisableWrite(id EventID) error { return l.setInterest(id, Write, false) }

func (l *Loop) DisableAll(id EventID) error {
	c, ok := l.table.lookup(id)
	if !ok {
		return errors.New("reactor: disableAll of unknown or stale event id")
	}
	c.interest = 0
	return l.modify(id)
}

func (l *Loop) setInterest(id EventID, bit Interest, on bool) error {
	c, ok := l.table.lookup(id)
	if !ok {
		return errors.New("reactor: setInterest of unknown or stale event id")
	}
	if on {
		c.interest |= bit
	} else {
		c.interest &^= bit
	}
	return l.modify(id)
}

func (l *Loop) IsRead(id EventID) bool {
	c, ok := l.table.lookup(id)
	return ok && c.interest.has(Read)
}

func (l *Loop) IsWrite(id EventID) bool {
	c, ok := l.table.lookup(id)
	return ok && c.interest.has(Write)
}

// LoopCounts returns the number of completed Step iterations, the Go
// analogue of cyclone's loop_counts() diagnostic.
func (l *Loop) LoopCounts() uint64 { return atomic.LoadUint64(&l.loopCounts) }

// IsQuitPending reports whether PushStopRequest has been called.
func (l *Loop) IsQuitPending() bool { return atomic.LoadInt32(&l.stopPending) != 0 }

// PushStopRequest asks the loop to exit after its current iteration.
// Safe to call from any goroutine; pokes the inner pipe at most once
// per pending stop so a burst of calls from multiple goroutines
// doesn't flood the wakeup pipe (mirrors cye_looper.cpp's
// m_inner_pipe_touched test-and-set).
func (l *Loop) PushStopRequest() {
	atomic.StoreInt32(&l.stopPending, 1)
	if atomic.CompareAndSwapInt32(&l.innerTouched, 0, 1) {
		l.inner.Write([]byte{1})
	}
}

// Loop runs Step repeatedly, blocking for readiness each iteration,
// until PushStopRequest is called.
func (l *Loop) Loop() {
	l.bindOwner()
	for !l.IsQuitPending() {
		l.Step(defaultPollTimeout, true)
	}
}

// Step runs a single iteration: poll, dispatch write-ready callbacks,
// dispatch read-ready callbacks, bump the loop counter. Writers run
// before readers, so bytes a read callback queues for writing are
// flushed on a later iteration.
func (l *Loop) Step(timeout time.Duration, block bool) error {
	l.bindOwner()
	readReady, writeReady, err := l.poller.Poll(timeout, block)
	if err != nil {
		return errors.Wrap(err, "reactor: poll")
	}

	for _, tok := range writeReady {
		id := EventID(tok)
		c, ok := l.table.lookup(id)
		if !ok || c.onWrite == nil || !c.interest.has(Write) {
			continue
		}
		c.onWrite(id)
	}
	for _, tok := range readReady {
		id := EventID(tok)
		c, ok := l.table.lookup(id)
		if !ok || c.onRead == nil || !c.interest.has(Read) {
			continue
		}
		if c.id == l.innerTimerID {
			atomic.StoreInt32(&l.innerTouched, 0)
		}
		c.onRead(id)
	}

	atomic.AddUint64(&l.loopCounts, 1)
	return nil
}

// Close releases the poller, timer scheduler, and inner pipe. The loop
// must not be used afterward.
func (l *Loop) Close() error {
	l.timers.Close()
	l.inner.Close()
	return l.poller.Close()
}
