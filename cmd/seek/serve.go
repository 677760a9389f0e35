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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/seek/internal/api"
	"github.com/michaelscutari/seek/internal/extract"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search HTTP API",
	Long: `Start an HTTP server that runs searches on request and streams their
progress over a websocket.`,
	RunE: runServe,
}

var (
	serveAddr     string
	serveMaxBytes int64
)

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "localhost:8080", "Listen address")
	serveCmd.Flags().Int64Var(&serveMaxBytes, "max-read", 0, "Per-file content read cap in bytes (0 = default)")
}

func runServe(cmd *cobra.Command, args []string) error {
	srv := api.NewServer(extract.NewRegistry().WithMaxBytes(serveMaxBytes))
	httpSrv := &http.Server{
		Addr:              serveAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", serveAddr).Info("server starting")
		fmt.Fprintf(os.Stderr, "Listening on http://%s\n", serveAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("searches did not stop in time")
	}
	return httpSrv.Shutdown(shutdownCtx)
}
