package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"wikirag/internal/httpapi"
	"wikirag/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()
	if err := a.Bootstrap(ctx); err != nil {
		// The API still answers with an error payload until the services come up.
		logger.L().Warn("collections not ready", "error", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = a.Config.Server.Addr
	}
	h := httpapi.NewHandler(a.Query, a.Store, a.Config.Query.MinScore)
	srv := &http.Server{
		Addr: addr,
		Handler: httpapi.SetupRouter(httpapi.RouterConfig{
			GinMode:     a.Config.Server.GinMode,
			CORSOrigins: a.Config.Server.CORSOrigins,
		}, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.L().Info("server exited")
	return nil
}
