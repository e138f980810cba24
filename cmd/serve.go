package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/server"
	"github.com/cwbudde/beamlayout/internal/store"
)

var (
	serveAddr    string
	serveTrace   bool
	serveStore   storeFlags
	noCheckpoint bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the optimization job server",
	Long: `Starts an HTTP server that runs optimization jobs in the background.
Jobs are created with POST /api/v1/jobs and can be paused, resumed and
cancelled; progress is streamed over server-sent events.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveTrace, "trace", false, "Write a JSONL snapshot trace per job under data-dir")
	serveCmd.Flags().BoolVar(&noCheckpoint, "no-checkpoints", false, "Disable checkpoint storage")
	serveStore.register(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var checkpointStore store.Store
	if !noCheckpoint {
		cs, release, err := serveStore.open(cmd.Context())
		if err != nil {
			return err
		}
		defer release()
		checkpointStore = cs
	}
	srv := server.NewServer(serveAddr, checkpointStore)
	if serveTrace {
		srv.EnableTrace(serveStore.dataDir)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}
