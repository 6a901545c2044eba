//go:build windows

package pipe

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xtaci/cyclone/clog"
	"github.com/xtaci/cyclone/internal/sysapi"
)

// Pipe on Windows is a self-connected loopback TCP pair, matching
// cye_pipe.cpp's constructSocketPipe: listen on 127.0.0.1:0, connect a
// second socket to it, accept, then close the intermediate listener.
type Pipe struct {
	readConn  net.Conn
	writeConn net.Conn
	readFD    int
	writeFD   int
}

func New() *Pipe {
	p, err := construct()
	if err != nil {
		clog.Fatal("create pipe failed", zap.Error(err))
	}
	return p
}

func construct() (*Pipe, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "pipe: listen")
	}
	defer ln.Close()

	writeConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		return nil, errors.Wrap(err, "pipe: connect")
	}

	readConn, err := ln.Accept()
	if err != nil {
		writeConn.Close()
		return nil, errors.Wrap(err, "pipe: accept")
	}

	readFD, err := rawFD(readConn)
	if err != nil {
		readConn.Close()
		writeConn.Close()
		return nil, err
	}
	writeFD, err := rawFD(writeConn)
	if err != nil {
		readConn.Close()
		writeConn.Close()
		return nil, err
	}
	if err := sysapi.SetNonBlock(readFD, true); err != nil {
		readConn.Close()
		writeConn.Close()
		return nil, err
	}
	if err := sysapi.SetNonBlock(writeFD, true); err != nil {
		readConn.Close()
		writeConn.Close()
		return nil, err
	}

	return &Pipe{readConn: readConn, writeConn: writeConn, readFD: readFD, writeFD: writeFD}, nil
}

func rawFD(c net.Conn) (int, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return 0, errors.New("pipe: connection does not expose a raw fd")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, errors.Wrap(err, "pipe: SyscallConn")
	}
	var fd int
	ctrlErr := raw.Control(func(h uintptr) { fd = int(h) })
	if ctrlErr != nil {
		return 0, errors.Wrap(ctrlErr, "pipe: raw control")
	}
	return fd, nil
}

func (p *Pipe) ReadPort() int  { return p.readFD }
func (p *Pipe) WritePort() int { return p.writeFD }

func (p *Pipe) Write(buf []byte) (int, error) {
	n, err := p.writeConn.Write(buf)
	return n, errors.Wrap(err, "pipe: write")
}

func (p *Pipe) Read(buf []byte) (int, error) {
	n, err := p.readConn.Read(buf)
	return n, errors.Wrap(err, "pipe: read")
}

func (p *Pipe) Close() error {
	err1 := p.readConn.Close()
	err2 := p.writeConn.Close()
	if err1 != nil {
		return errors.Wrap(err1, "pipe: close read end")
	}
	return errors.Wrap(err2, "pipe: close write end")
}
