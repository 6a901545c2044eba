package conn

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci/cyclone/buffer"
	"github.com/xtaci/cyclone/internal/sysapi"
	"github.com/xtaci/cyclone/reactor"
)

// OnConnected is called once a dial attempt resolves. ok is false on
// failure (no connect timeout is applied); the callback's return value
// is the delay before retrying, 0 meaning give up.
// Matches cyn_tcp_client.h's onConnected listener signature.
type OnConnected func(client *TcpClient, connection *Connection, ok bool) time.Duration

// TcpClient dials a single server address on a reactor.Loop, retrying
// on a backoff timer, and hands off to a Connection once established.
// Matches cyn_tcp_client.h/.cpp.
type TcpClient struct {
	loop  *reactor.Loop
	param interface{}

	mu         sync.Mutex
	fd         int
	socketID   reactor.EventID
	retryID    reactor.EventID
	connection *Connection

	serverAddr sysapi.Address
	sendCache  *buffer.RingBuffer

	nextConnID int32

	OnConnected OnConnected
	OnMessage   MessageFunc
	OnClose     func(client *TcpClient)
}

// NewClient constructs an unconnected TcpClient bound to loop.
func NewClient(loop *reactor.Loop, param interface{}) *TcpClient {
	return &TcpClient{
		loop:      loop,
		param:     param,
		fd:        -1,
		socketID:  reactor.InvalidEventID,
		retryID:   reactor.InvalidEventID,
		sendCache: buffer.New(),
	}
}

// State reports the client's current connection state by delegating to
// its Connection once established, or inferring Connecting/Disconnected
// from the raw socket otherwise.
func (t *TcpClient) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connection != nil {
		return t.connection.State()
	}
	if t.fd < 0 {
		return Disconnected
	}
	return Connecting
}

// Connect starts a non-blocking dial to addr. Must run on the loop
// thread.
func (t *TcpClient) Connect(addr sysapi.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd, err := sysapi.CreateSocket()
	if err != nil {
		return errors.Wrap(err, "conn: create socket")
	}
	sysapi.SetNonBlock(fd, true)
	sysapi.SetCloseOnExec(fd, true)
	sysapi.SetKeepAlive(fd, true)
	sysapi.SetLinger(fd, false, 0)

	t.fd = fd
	t.serverAddr = addr

	eventID, err := t.loop.RegisterIO(fd, reactor.Read|reactor.Write, t.onSocketReadWrite, t.onSocketReadWrite, t)
	if err != nil {
		return errors.Wrap(err, "conn: register client socket")
	}
	t.socketID = eventID

	if err := sysapi.Connect(fd, addr); err != nil {
		return errors.Wrap(err, "conn: connect")
	}
	return nil
}

func (t *TcpClient) releaseEvent(id *reactor.EventID) {
	if *id == reactor.InvalidEventID {
		return
	}
	t.loop.DisableAll(*id)
	t.loop.DeleteEvent(*id)
	*id = reactor.InvalidEventID
}

func (t *TcpClient) onSocketReadWrite(reactor.EventID) {
	if t.State() == Connecting {
		t.onConnectStatusChanged(false)
	}
}

func (t *TcpClient) onConnectStatusChanged(timeout bool) {
	t.mu.Lock()
	fd := t.fd
	t.mu.Unlock()

	sockErr, _ := sysapi.GetSocketError(fd)
	if timeout || sockErr != 0 {
		var retry time.Duration
		if t.OnConnected != nil {
			retry = t.OnConnected(t, nil, false)
		}
		t.abortConnect(retry)
		return
	}

	t.mu.Lock()
	t.releaseEvent(&t.socketID)

	t.nextConnID++
	c, err := New(t.nextConnID, fd, t.loop, t.param)
	if err != nil {
		t.mu.Unlock()
		return
	}
	if t.OnMessage != nil {
		c.SetOnMessage(t.OnMessage)
	}
	if t.OnClose != nil {
		c.SetOnClose(func(*Connection) { t.OnClose(t) })
	}
	t.connection = c

	if !t.sendCache.Empty() {
		data := t.sendCache.Normalize()
		c.Send(data)
		t.sendCache.Reset()
	}
	t.mu.Unlock()

	if t.OnConnected != nil {
		t.OnConnected(t, c, true)
	}
}

func (t *TcpClient) abortConnect(retry time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.releaseEvent(&t.socketID)
	t.releaseEvent(&t.retryID)

	sysapi.CloseSocket(t.fd)
	t.fd = -1

	if retry > 0 {
		id, err := t.loop.RegisterTimer(retry, t.onRetryTimerFired, nil)
		if err == nil {
			t.retryID = id
		}
	}
}

func (t *TcpClient) onRetryTimerFired(reactor.EventID) {
	t.mu.Lock()
	t.releaseEvent(&t.retryID)
	addr := t.serverAddr
	t.mu.Unlock()

	if err := t.Connect(addr); err != nil {
		var retry time.Duration
		if t.OnConnected != nil {
			retry = t.OnConnected(t, nil, false)
		}
		if retry > 0 {
			t.mu.Lock()
			id, regErr := t.loop.RegisterTimer(retry, t.onRetryTimerFired, nil)
			if regErr == nil {
				t.retryID = id
			}
			t.mu.Unlock()
		}
	}
}

// Disconnect tears the client down: aborts an in-flight dial, or
// shuts down the established Connection.
func (t *TcpClient) Disconnect() {
	t.sendCache.Reset()
	switch t.State() {
	case Disconnected:
		return
	case Connecting:
		t.abortConnect(0)
	default:
		t.mu.Lock()
		c := t.connection
		t.mu.Unlock()
		if c != nil {
			c.Shutdown()
		}
	}
}

// Send queues buf for delivery: while connecting it is buffered into a
// send cache flushed on success; once connected it forwards to the
// underlying Connection's Send.
func (t *TcpClient) Send(buf []byte) {
	switch t.State() {
	case Connecting:
		t.mu.Lock()
		t.sendCache.WriteBytes(buf)
		t.mu.Unlock()
	case Connected:
		t.mu.Lock()
		c := t.connection
		t.mu.Unlock()
		if c != nil {
			c.Send(buf)
		}
	}
}

// Connection returns the established Connection, or nil before connect
// completes. Once that Connection closes, it is still returned, in the
// Disconnected state; the field is not cleared.
func (t *TcpClient) Connection() *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connection
}
