// Command frontier-server serves the Monte Carlo portfolio simulation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/frontier/internal/app"
	"github.com/bobmcallan/frontier/internal/common"
	"github.com/bobmcallan/frontier/internal/server"
)

// shutdownGrace is how long in-flight simulations get to finish on stop.
const shutdownGrace = 15 * time.Second

func main() {
	a, err := app.NewApp(os.Getenv("FRONTIER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	if err := run(a); err != nil {
		a.Logger.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

// run serves until SIGINT, SIGTERM or POST /api/shutdown, then drains.
func run(a *app.App) error {
	common.PrintBanner(a.Config, a.Logger)

	srv := server.NewServer(a)
	requested := make(chan struct{}, 1)
	srv.SetShutdownChannel(requested)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()
	a.Logger.Info().Str("addr", srv.Addr()).Msg("Server ready")

	select {
	case err := <-failed:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		a.Logger.Info().Msg("Shutdown signal received")
	case <-requested:
		a.Logger.Info().Msg("Shutdown requested via HTTP")
	}

	common.PrintShutdownBanner(a.Logger)

	drain, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drain); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.Logger.Info().Dur("uptime", time.Since(a.StartupTime)).Msg("Server stopped")
	return nil
}
