package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/italolelis/mocap_installer/internal/cleanup"
	"github.com/italolelis/mocap_installer/internal/config"
	"github.com/italolelis/mocap_installer/internal/http/rest"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/spf13/cobra"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var withDaemon bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the artifact ledger, daemon health and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, withDaemon)
		},
	}

	cmd.Flags().BoolVar(&withDaemon, "daemon", true, "connect to the download daemon for health checks")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, withDaemon bool) error {
	logger := logctx.LoggerFromContext(ctx)

	a, err := newApp(ctx, cfg, withDaemon)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	// =========================================================================
	// Start Cleanup
	go cleanup.Run(ctx, a.ledger, cfg.CleanupInterval, cfg.KeepFailedFor)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      rest.NewRouter(rest.NewStatusHandler(a.ledger, a.daemon, cfg.Web.Username, cfg.Web.Password), a.telemetry),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}
