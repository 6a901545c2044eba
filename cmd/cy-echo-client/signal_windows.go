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

func installSignalHandlers(loop *reactor.Loop, disconnect func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-ch
		clog.Info("received shutdown signal", zap.String("signal", sig.String()))
		disconnect()
		loop.PushStopRequest()
	}()
}
