//go:build windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xtaci/cyclone/clog"
	"github.com/xtaci/cyclone/reactor"
)

// installSignalHandlers has no SIGUSR1 equivalent on Windows, so the
// debug dump is unreachable via signal here; Ctrl-Break/Ctrl-C still
// requests a graceful stop.
func installSignalHandlers(loop *reactor.Loop, dump func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-ch
		clog.Info("received shutdown signal", zap.String("signal", sig.String()))
		loop.PushStopRequest()
	}()
}
