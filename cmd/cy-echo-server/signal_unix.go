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

// installSignalHandlers wires SIGINT/SIGTERM to a graceful
// push_stop_request and SIGUSR1 to a one-shot debug dump, the same
// split kcptun's client gives SIGUSR1 for its own SNMP dump — here the
// payload is this library's debug-value sink instead.
func installSignalHandlers(loop *reactor.Loop, dump func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		for sig := range ch {
			switch sig {
			case syscall.SIGUSR1:
				dump()
			default:
				clog.Info("received shutdown signal", zap.String("signal", sig.String()))
				loop.PushStopRequest()
				return
			}
		}
	}()
}
