package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

type signalListener interface {
	Signal(context.Context, os.Signal)
}

var signalChan = make(chan os.Signal, 1)

// listenSignals subscribes to SIGINT/SIGTERM and forwards whichever
// arrives first — or ctx's cancellation, reported as os.Interrupt — to
// listener.
func listenSignals(ctx context.Context, listener signalListener) {
	go func() {
		signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ctx.Done():
			listener.Signal(ctx, os.Interrupt)
		case sig := <-signalChan:
			listener.Signal(ctx, sig)
		}
	}()
}
