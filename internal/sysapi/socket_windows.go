//go:build windows

package sysapi

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// SetNonBlock toggles FIONBIO via ioctlsocket, the Windows equivalent of
// cyclone's setNonBlock for the loopback-pipe sockets it constructs.
func SetNonBlock(fd int, enable bool) error {
	v := uint32(0)
	if enable {
		v = 1
	}
	return errors.Wrap(windows.IoctlSocket(windows.Handle(fd), windows.FIONBIO, &v), "sysapi: ioctlsocket FIONBIO")
}

// SetCloseOnExec is a no-op on Windows; handle inheritance is controlled
// at CreateProcess time instead of per-socket, same as cyclone's
// setCloseOnExec stub for CY_SYS_WINDOWS.
func SetCloseOnExec(fd int, enable bool) error { return nil }

func SetKeepAlive(fd int, on bool) error {
	return errors.Wrap(windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_KEEPALIVE, boolToInt(on)), "sysapi: SO_KEEPALIVE")
}

func SetLinger(fd int, on bool, seconds int) error {
	l := windows.Linger{Onoff: uint16(boolToInt(on)), Linger: uint16(seconds)}
	return errors.Wrap(windows.SetsockoptLinger(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_LINGER, &l), "sysapi: SO_LINGER")
}

func SetReuseAddr(fd int, on bool) error {
	return errors.Wrap(windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, boolToInt(on)), "sysapi: SO_REUSEADDR")
}

// SetReusePort has no Windows equivalent; SO_REUSEADDR already permits
// multiple binds there, so this is intentionally a no-op.
func SetReusePort(fd int, on bool) error { return nil }

func SetNoDelay(fd int, on bool) error {
	return errors.Wrap(windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_TCP, windows.TCP_NODELAY, boolToInt(on)), "sysapi: TCP_NODELAY")
}

func GetSocketError(fd int) (int, error) {
	v, err := windows.GetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_ERROR)
	return v, errors.Wrap(err, "sysapi: SO_ERROR")
}

func getName(fd int, peer bool) (Address, error) {
	var (
		sa  windows.Sockaddr
		err error
	)
	if peer {
		sa, err = windows.Getpeername(windows.Handle(fd))
	} else {
		sa, err = windows.Getsockname(windows.Handle(fd))
	}
	if err != nil {
		return Address{}, errors.Wrap(err, "sysapi: getname")
	}
	in4, ok := sa.(*windows.SockaddrInet4)
	if !ok {
		return Address{}, errors.New("sysapi: non-IPv4 sockaddr")
	}
	var addr Address
	copy(addr.IP[:], in4.Addr[:])
	addr.Port = uint16(in4.Port)
	return addr, nil
}

func IsWouldBlock(err error) bool {
	return errors.Is(err, windows.WSAEWOULDBLOCK)
}

func IsFatalSocketError(err error) bool {
	return errors.Is(err, windows.WSAESHUTDOWN) || errors.Is(err, windows.WSAENETRESET)
}

func CreateSocket() (int, error) {
	h, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	return int(h), errors.Wrap(err, "sysapi: socket")
}

func Connect(fd int, addr Address) error {
	sa := &windows.SockaddrInet4{Port: int(addr.Port), Addr: addr.IP}
	err := windows.Connect(windows.Handle(fd), sa)
	if err != nil && errors.Is(err, windows.WSAEWOULDBLOCK) {
		return nil
	}
	return errors.Wrap(err, "sysapi: connect")
}

func WriteFD(fd int, buf []byte) (int, error) {
	n, err := windows.Write(windows.Handle(fd), buf)
	return n, errors.Wrap(err, "sysapi: write")
}

func ReadFD(fd int, buf []byte) (int, error) {
	n, err := windows.Read(windows.Handle(fd), buf)
	return n, errors.Wrap(err, "sysapi: read")
}

func ShutdownSocket(fd int) error {
	return errors.Wrap(windows.Shutdown(windows.Handle(fd), windows.SHUT_RDWR), "sysapi: shutdown")
}

func CloseSocket(fd int) error {
	return errors.Wrap(windows.Closesocket(windows.Handle(fd)), "sysapi: close")
}

func Bind(fd int, addr Address) error {
	sa := &windows.SockaddrInet4{Port: int(addr.Port), Addr: addr.IP}
	return errors.Wrap(windows.Bind(windows.Handle(fd), sa), "sysapi: bind")
}

func Listen(fd int, backlog int) error {
	return errors.Wrap(windows.Listen(windows.Handle(fd), backlog), "sysapi: listen")
}

func Accept(fd int) (int, error) {
	nfd, _, err := windows.Accept(windows.Handle(fd))
	if err != nil {
		return -1, errors.Wrap(err, "sysapi: accept")
	}
	if err := SetNonBlock(int(nfd), true); err != nil {
		return -1, err
	}
	return int(nfd), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
