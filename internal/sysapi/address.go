// Package sysapi wraps the host OS primitives the reactor core needs:
// non-blocking socket setup, address conversion, and monotonic time. It
// is the Go analogue of cyclone's socket_api/system_api namespaces —
// a thin collaborator imported by internal/, the packages that sit
// directly on top of a raw fd, and the sample commands (for Address).
package sysapi

import (
	"net"

	"github.com/pkg/errors"
)

// Address holds an IPv4 address and port, convertible to/from the OS
// sockaddr structure. Connection keeps one of these for each of its
// local and peer ends, captured at construction.
type Address struct {
	IP   [4]byte
	Port uint16
}

// AddressFromTCPAddr converts a resolved *net.TCPAddr into an Address.
func AddressFromTCPAddr(a *net.TCPAddr) (Address, error) {
	var addr Address
	ip4 := a.IP.To4()
	if ip4 == nil {
		return addr, errors.Errorf("sysapi: address %s is not IPv4", a.IP)
	}
	copy(addr.IP[:], ip4)
	addr.Port = uint16(a.Port)
	return addr, nil
}

// TCPAddr converts back to the standard library representation.
func (a Address) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4(a.IP[0], a.IP[1], a.IP[2], a.IP[3]), Port: int(a.Port)}
}

func (a Address) String() string {
	return a.TCPAddr().String()
}

// LocalAddress and PeerAddress read the two ends of a connected socket,
// mirroring cyn_connection.cpp's use of Address(false, fd)/Address(true, fd).
func LocalAddress(fd int) (Address, error) {
	a, err := getName(fd, false)
	return a, errors.Wrap(err, "sysapi: getsockname")
}

func PeerAddress(fd int) (Address, error) {
	a, err := getName(fd, true)
	return a, errors.Wrap(err, "sysapi: getpeername")
}
