package orchestrator

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// WaitForShutdown blocks until SIGINT or SIGTERM arrives, then runs the
// graceful shutdown. A second signal while shutdown is in progress calls
// force instead of waiting any longer.
func WaitForShutdown(log zerolog.Logger, shutdown func(), force func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	done := make(chan struct{})
	go func() {
		shutdown()
		close(done)
	}()

	select {
	case <-done:
	case sig = <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("Second signal received, forcing shutdown")
		force()
	}
}
