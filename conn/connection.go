package conn

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xtaci/cyclone/buffer"
	"github.com/xtaci/cyclone/clog"
	"github.com/xtaci/cyclone/internal/sysapi"
	"github.com/xtaci/cyclone/reactor"
)

const (
	defaultReadBufSize  = 1024
	defaultWriteBufSize = 1024
)

// MessageFunc is invoked after a successful socket read with new bytes
// available in c.ReadBuffer().
type MessageFunc func(c *Connection)

// CloseFunc is invoked exactly once, at the point a Connection
// transitions to Disconnected.
type CloseFunc func(c *Connection)

// Connection is a non-blocking TCP socket registered with a
// reactor.Loop, with its own growable read and write ring buffers.
// Matches cyn_connection.h/.cpp.
type Connection struct {
	id   int32
	name string
	fd   int

	loop    *reactor.Loop
	eventID reactor.EventID

	state AtomicState

	readBuf  *buffer.RingBuffer
	writeBuf *buffer.RingBuffer
	writeMu  sync.Mutex

	maxSendBufLen int

	localAddr sysapi.Address
	peerAddr  sysapi.Address

	param interface{}

	onMessage MessageFunc
	onClose   CloseFunc

	debuger DebugSink
}

// New wraps an already-connected, established fd into a Connection
// registered on loop for Read events, matching the Connection
// constructor's socket setup and registerEvent call.
func New(id int32, fd int, loop *reactor.Loop, param interface{}) (*Connection, error) {
	if err := sysapi.SetNonBlock(fd, true); err != nil {
		return nil, err
	}
	sysapi.SetCloseOnExec(fd, true)
	sysapi.SetKeepAlive(fd, true)
	sysapi.SetLinger(fd, false, 0)

	c := &Connection{
		id:       id,
		fd:       fd,
		loop:     loop,
		param:    param,
		readBuf:  buffer.NewSize(defaultReadBufSize),
		writeBuf: buffer.NewSize(defaultWriteBufSize),
		debuger:  NopSink{},
	}
	c.state.Store(Connected)
	c.name = defaultName(id)

	if local, err := sysapi.LocalAddress(fd); err == nil {
		c.localAddr = local
	}
	if peer, err := sysapi.PeerAddress(fd); err == nil {
		c.peerAddr = peer
	}

	eventID, err := loop.RegisterIO(fd, reactor.Read, c.onSocketRead, c.onSocketWrite, c)
	if err != nil {
		return nil, errors.Wrap(err, "conn: register socket")
	}
	c.eventID = eventID
	return c, nil
}

// defaultName combines the caller-assigned id with a short random
// suffix so log lines stay unique across id reuse after a connection
// closes and its slot is recycled.
func defaultName(id int32) string {
	return "connection_" + itoa(id) + "-" + uuid.New().String()[:8]
}

func itoa(id int32) string {
	if id == 0 {
		return "0"
	}
	neg := id < 0
	if neg {
		id = -id
	}
	var buf [12]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ID returns the connection's caller-assigned identifier.
func (c *Connection) ID() int32 { return c.id }

// Name returns the connection's debug name.
func (c *Connection) Name() string { return c.name }

// SetName overrides the default "connection_<id>-<uuid prefix>" debug
// name. Must be
// called on the loop thread.
func (c *Connection) SetName(name string) { c.name = name }

// State returns the current lifecycle state. Safe from any goroutine.
func (c *Connection) State() State { return c.state.Load() }

// LocalAddr and PeerAddr return the two ends captured at construction.
func (c *Connection) LocalAddr() sysapi.Address { return c.localAddr }
func (c *Connection) PeerAddr() sysapi.Address  { return c.peerAddr }

// Param returns the opaque value passed to New.
func (c *Connection) Param() interface{} { return c.param }

// ReadBuffer exposes the read ring buffer for the message callback to
// drain; only valid to call from the loop thread (the read handler).
func (c *Connection) ReadBuffer() *buffer.RingBuffer { return c.readBuf }

// SetOnMessage and SetOnClose install the connection's callbacks. Must
// be called before the connection starts receiving events (i.e.
// immediately after New, on the loop thread).
func (c *Connection) SetOnMessage(fn MessageFunc) { c.onMessage = fn }
func (c *Connection) SetOnClose(fn CloseFunc)     { c.onClose = fn }

// MaxSendBufLen reports the largest size the write buffer has reached,
// a diagnostic high-water mark, never a cap.
func (c *Connection) MaxSendBufLen() int { return c.maxSendBufLen }

func (c *Connection) writeBufEmpty() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeBuf.Empty()
}

// Send queues buf for delivery. Thread-safe: called from the loop
// thread it attempts a direct, non-blocking write first; called from
// any other goroutine it only ever appends to the write buffer and
// enables the Write interest. It deliberately does not wake the loop
// via the inner pipe, saving a pipe write per send: epoll and kqueue
// apply the interest change to a wait already in progress, while the
// select backends pick it up on the next poll, which Loop (waiting with
// no deadline) reaches only on another readiness event, a timer tick,
// or PushStopRequest. See SPEC_FULL.md §9 for the tradeoff.
func (c *Connection) Send(buf []byte) {
	if len(buf) == 0 {
		return
	}
	if c.State() != Connected {
		clog.Error("send message state error", zap.Int32("id", c.id), zap.String("state", c.State().String()))
		return
	}

	if !c.loop.IsWrite(c.eventID) && c.writeBufEmpty() {
		c.directSend(buf)
		return
	}

	c.writeMu.Lock()
	c.writeBuf.WriteBytes(buf)
	c.writeMu.Unlock()
	c.loop.EnableWrite(c.eventID)
}

// directSend attempts a single non-blocking write and queues any
// remainder (or the whole buffer, on WOULDBLOCK) for the write handler
// to finish later.
func (c *Connection) directSend(buf []byte) {
	n, err := sysapi.WriteFD(c.fd, buf)
	faultError := false
	remaining := buf
	if err == nil {
		remaining = buf[n:]
	} else {
		cause := errors.Cause(err)
		if !sysapi.IsWouldBlock(cause) {
			clog.Error("socket send error", zap.Int32("id", c.id), zap.Error(err))
			if sysapi.IsFatalSocketError(cause) {
				faultError = true
			}
		}
	}

	if !faultError && len(remaining) > 0 {
		c.writeMu.Lock()
		c.writeBuf.WriteBytes(remaining)
		c.writeMu.Unlock()
		c.loop.EnableWrite(c.eventID)
	}

	if faultError {
		c.loop.DisableAll(c.eventID)
		c.Shutdown()
	}
}

// Shutdown transitions Connected -> Disconnecting. Must run on the loop
// thread. Closes immediately if nothing remains to drain; otherwise the
// write handler re-invokes Shutdown once the buffer empties.
func (c *Connection) Shutdown() {
	if c.State() != Connected && c.State() != Disconnecting {
		return
	}
	c.state.Store(Disconnecting)

	if c.loop.IsWrite(c.eventID) && !c.writeBufEmpty() {
		return
	}

	sysapi.ShutdownSocket(c.fd)
	c.onSocketClose()
}

func (c *Connection) onSocketRead(reactor.EventID) {
	n, err := c.readBuf.ReadFromSocket(c.fd, true)
	switch {
	case err != nil:
		c.onSocketError()
	case n > 0:
		if c.onMessage != nil {
			c.onMessage(c)
		}
	case n == 0:
		c.onSocketClose()
	default:
		// n == -1: nothing available this readiness notification, retry later
	}
}

func (c *Connection) onSocketWrite(reactor.EventID) {
	if !c.loop.IsWrite(c.eventID) {
		return
	}

	c.writeMu.Lock()
	if c.writeBuf.Size() > c.maxSendBufLen {
		c.maxSendBufLen = c.writeBuf.Size()
	}
	n, err := c.writeBuf.WriteToSocket(c.fd)
	empty := c.writeBuf.Empty()
	c.writeMu.Unlock()

	if err != nil {
		clog.Error("write socket error", zap.Int32("id", c.id), zap.Error(err))
		return
	}
	if n > 0 && empty {
		c.loop.DisableWrite(c.eventID)
		if c.State() == Disconnecting {
			c.Shutdown()
		}
	}
}

func (c *Connection) onSocketError() { c.onSocketClose() }

func (c *Connection) onSocketClose() {
	if c.State() == Disconnected {
		return
	}
	c.state.Store(Disconnected)

	c.loop.DisableAll(c.eventID)
	c.loop.DeleteEvent(c.eventID)
	c.eventID = reactor.InvalidEventID

	c.delDebugValues()

	if c.onClose != nil {
		c.onClose(c)
	}

	c.writeMu.Lock()
	c.writeBuf.Reset()
	c.writeMu.Unlock()
	c.readBuf.Reset()

	sysapi.CloseSocket(c.fd)
	c.fd = -1
}

// Debug publishes the connection's buffer diagnostics to sink,
// matching cyn_connection.cpp's debug()/_del_debug_value() pair.
func (c *Connection) Debug(sink DebugSink) {
	if sink == nil || !sink.Enabled() {
		return
	}
	c.debuger = sink
	sink.UpdateDebugValue("Connection:"+c.name+":readbuf_capacity", int64(c.readBuf.Capacity()))
	sink.UpdateDebugValue("Connection:"+c.name+":writebuf_capacity", int64(c.writeBuf.Capacity()))
	sink.UpdateDebugValue("Connection:"+c.name+":max_sendbuf_len", int64(c.maxSendBufLen))
}

func (c *Connection) delDebugValues() {
	if c.debuger == nil || !c.debuger.Enabled() {
		return
	}
	c.debuger.DelDebugValue("Connection:" + c.name + ":readbuf_capacity")
	c.debuger.DelDebugValue("Connection:" + c.name + ":writebuf_capacity")
	c.debuger.DelDebugValue("Connection:" + c.name + ":max_sendbuf_len")
}
