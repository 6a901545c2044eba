//go:build linux || darwin || freebsd

package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xtaci/cyclone/clog"
	"github.com/xtaci/cyclone/reactor"
)

// installSignalHandlers wires SIGINT/SIGTERM to a graceful disconnect
// followed by a push_stop_request, ignoring SIGPIPE the way the
// teacher's client does.
func installSignalHandlers(loop *reactor.Loop, disconnect func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		sig := <-ch
		clog.Info("received shutdown signal", zap.String("signal", sig.String()))
		disconnect()
		loop.PushStopRequest()
	}()
}
