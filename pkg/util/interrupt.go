package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/small-frappuccino/eventcore/pkg/log"
)

// ShutdownSignals stop the gateway session gracefully.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Replaced in tests.
var (
	notifySignals = signal.Notify
	stopSignals   = signal.Stop
)

// WaitForInterrupt blocks until a shutdown signal arrives or ctx is done. It
// returns the signal, or nil when ctx ended the wait.
func WaitForInterrupt(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	notifySignals(ch, ShutdownSignals...)
	defer stopSignals(ch)

	select {
	case sig := <-ch:
		log.ApplicationLogger().Info("Shutdown signal received", "signal", sig.String())
		return sig
	case <-ctx.Done():
		log.ApplicationLogger().Info("Shutdown requested", "cause", context.Cause(ctx))
		return nil
	}
}
