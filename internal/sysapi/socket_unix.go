//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sysapi

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SetNonBlock enables or disables O_NONBLOCK on fd, the unconditional
// first step cyclone's Connection constructor takes on every accepted
// or dialed socket.
func SetNonBlock(fd int, enable bool) error {
	return errors.Wrap(unix.SetNonblock(fd, enable), "sysapi: setnonblock")
}

// SetCloseOnExec sets or clears FD_CLOEXEC.
func SetCloseOnExec(fd int, enable bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return errors.Wrap(err, "sysapi: fcntl F_GETFD")
	}
	if enable {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags)
	return errors.Wrap(err, "sysapi: fcntl F_SETFD")
}

// SetKeepAlive enables or disables SO_KEEPALIVE, set unconditionally by
// cyclone on every connected socket.
func SetKeepAlive(fd int, on bool) error {
	return errors.Wrap(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on)), "sysapi: SO_KEEPALIVE")
}

// SetLinger sets SO_LINGER; cyclone always disables lingering on close
// (on=false) so close() returns at once while the kernel keeps
// delivering already-queued bytes in the background.
func SetLinger(fd int, on bool, seconds int) error {
	l := unix.Linger{Onoff: int32(boolToInt(on)), Linger: int32(seconds)}
	return errors.Wrap(unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &l), "sysapi: SO_LINGER")
}

// SetReuseAddr/SetReusePort back the sample listener helpers.
func SetReuseAddr(fd int, on bool) error {
	return errors.Wrap(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on)), "sysapi: SO_REUSEADDR")
}

func SetReusePort(fd int, on bool) error {
	return errors.Wrap(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on)), "sysapi: SO_REUSEPORT")
}

func SetNoDelay(fd int, on bool) error {
	return errors.Wrap(unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on)), "sysapi: TCP_NODELAY")
}

// GetSocketError reads and clears SO_ERROR, the standard way to learn
// whether a non-blocking connect() has completed successfully.
func GetSocketError(fd int) (int, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	return v, errors.Wrap(err, "sysapi: SO_ERROR")
}

func getName(fd int, peer bool) (Address, error) {
	var (
		sa  unix.Sockaddr
		err error
	)
	if peer {
		sa, err = unix.Getpeername(fd)
	} else {
		sa, err = unix.Getsockname(fd)
	}
	if err != nil {
		return Address{}, err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return Address{}, errors.New("sysapi: non-IPv4 sockaddr")
	}
	var addr Address
	copy(addr.IP[:], in4.Addr[:])
	addr.Port = uint16(in4.Port)
	return addr, nil
}

// IsWouldBlock reports whether err is EAGAIN/EWOULDBLOCK/EINTR — the
// transient class from §7.1 that a non-blocking caller must just retry
// on the next readiness notification.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// IsFatalSocketError reports the fatal class from §7.2: the peer is
// gone, not just momentarily unready.
func IsFatalSocketError(err error) bool {
	return errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET)
}

// CreateSocket allocates a fresh non-blocking, close-on-exec IPv4 TCP
// socket, the Go analogue of socket_api::createSocket().
func CreateSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	return fd, errors.Wrap(err, "sysapi: socket")
}

// Connect starts a (possibly still-in-progress, for a non-blocking fd)
// connect to addr.
func Connect(fd int, addr Address) error {
	sa := &unix.SockaddrInet4{Port: int(addr.Port), Addr: addr.IP}
	err := unix.Connect(fd, sa)
	if err != nil && errors.Is(err, unix.EINPROGRESS) {
		return nil
	}
	return errors.Wrap(err, "sysapi: connect")
}

// WriteFD and ReadFD are the plain (non-vectored) read/write primitives
// Connection uses for its direct-write fast path and buffer package
// uses internally is bypassed; kept here for the single-shot case.
func WriteFD(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	return n, errors.Wrap(err, "sysapi: write")
}

func ReadFD(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	return n, errors.Wrap(err, "sysapi: read")
}

// ShutdownSocket issues shutdown(fd, SHUT_RDWR), allowing any
// already-dispatched writes to flush before CloseSocket tears the fd
// down, matching socket_api::shutdown().
func ShutdownSocket(fd int) error {
	return errors.Wrap(unix.Shutdown(fd, unix.SHUT_RDWR), "sysapi: shutdown")
}

// CloseSocket releases fd.
func CloseSocket(fd int) error {
	return errors.Wrap(unix.Close(fd), "sysapi: close")
}

// Bind binds fd to addr.
func Bind(fd int, addr Address) error {
	sa := &unix.SockaddrInet4{Port: int(addr.Port), Addr: addr.IP}
	return errors.Wrap(unix.Bind(fd, sa), "sysapi: bind")
}

// Listen marks fd as a listening socket with the given backlog.
func Listen(fd int, backlog int) error {
	return errors.Wrap(unix.Listen(fd, backlog), "sysapi: listen")
}

// Accept accepts one pending connection off a listening fd, returning
// the new non-blocking client fd.
func Accept(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, errors.Wrap(err, "sysapi: accept")
	}
	return nfd, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
