package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/resistornet/internal/server"
	"github.com/cwbudde/resistornet/internal/store"
)

var (
	serveAddr  string
	serveTrace bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that runs synthesis jobs in the background, streams
their progress over SSE, checkpoints their best networks and exposes
Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config: localhost:8080)")
	serveCmd.Flags().BoolVar(&serveTrace, "trace", false, "Write restart traces for every job")
	addStoreFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	dir, kind := storeSettings(cmd)

	checkpointStore, err := store.Open(kind, dir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer checkpointStore.Close()

	opts := server.WorkerOptions{
		Store:            checkpointStore,
		MayflyIterations: cfg.Mayfly.Iterations,
		MayflyPopulation: cfg.Mayfly.Population,
		Bound:            cfg.Solver.Bound,
	}
	if serveTrace {
		opts.TraceDir = dir
	}
	srv := server.NewServer(addr, opts)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
