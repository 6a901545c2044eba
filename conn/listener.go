package conn

import (
	"github.com/pkg/errors"

	"github.com/xtaci/cyclone/internal/sysapi"
	"github.com/xtaci/cyclone/reactor"
)

// AcceptFunc is invoked once per accepted connection, on the loop
// thread. The Connection is already registered with the loop; the
// callback typically just installs SetOnMessage/SetOnClose.
type AcceptFunc func(c *Connection)

// Listener is a bound, listening socket registered with a reactor.Loop,
// the accept-side counterpart to TcpClient. Not present in the
// original C++ sources (TcpClient there is dial-only); built here so
// the sample programs can demonstrate the full accept → Connection
// path through the same reactor/Connection primitives.
type Listener struct {
	fd      int
	loop    *reactor.Loop
	eventID reactor.EventID

	nextConnID int32

	OnAccept AcceptFunc
}

// Listen binds and listens on addr, registering the listening socket
// for Read (accept-ready) with loop.
func Listen(loop *reactor.Loop, addr sysapi.Address, backlog int) (*Listener, error) {
	fd, err := sysapi.CreateSocket()
	if err != nil {
		return nil, errors.Wrap(err, "conn: create listen socket")
	}
	sysapi.SetReuseAddr(fd, true)
	if err := sysapi.Bind(fd, addr); err != nil {
		sysapi.CloseSocket(fd)
		return nil, errors.Wrap(err, "conn: bind")
	}
	if err := sysapi.Listen(fd, backlog); err != nil {
		sysapi.CloseSocket(fd)
		return nil, errors.Wrap(err, "conn: listen")
	}
	if err := sysapi.SetNonBlock(fd, true); err != nil {
		sysapi.CloseSocket(fd)
		return nil, err
	}

	l := &Listener{fd: fd, loop: loop}
	eventID, err := loop.RegisterIO(fd, reactor.Read, l.onAcceptReady, nil, l)
	if err != nil {
		sysapi.CloseSocket(fd)
		return nil, errors.Wrap(err, "conn: register listener")
	}
	l.eventID = eventID
	return l, nil
}

func (l *Listener) onAcceptReady(reactor.EventID) {
	for {
		nfd, err := sysapi.Accept(l.fd)
		if err != nil {
			return
		}
		l.nextConnID++
		c, err := New(l.nextConnID, nfd, l.loop, nil)
		if err != nil {
			sysapi.CloseSocket(nfd)
			continue
		}
		if l.OnAccept != nil {
			l.OnAccept(c)
		}
	}
}

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() error {
	l.loop.DisableAll(l.eventID)
	l.loop.DeleteEvent(l.eventID)
	return sysapi.CloseSocket(l.fd)
}
