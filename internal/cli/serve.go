package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"form990/internal/app"
)

// shutdownTimeout bounds the graceful shutdown of the server.
const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch-submission endpoint",
		Long: `Start an HTTP server that accepts a CSV (or XLSX) body on POST /extract
and answers with the extracted table as an attachment.

Also serves GET /health and GET /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := app.New(&cfg, opts.log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return Serve(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}

// Serve runs the HTTP server until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, a *app.App) error {
	srv, err := a.HTTPServer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		a.Logger.Info("starting form990 server", "addr", srv.Addr, "auth", a.Config.Server.Auth.Enabled)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.Logger.Info("server stopped")

	return nil
}
