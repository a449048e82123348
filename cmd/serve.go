package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/scenariosearch/internal/server"
)

var (
	serveAddr     string
	maxConcurrent int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts an HTTP server that accepts search and sweep runs, streams their
progress over server-sent events and exposes Prometheus metrics on /metrics.
Interrupting the server cancels active runs; they resume from their
checkpoints.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().Int64Var(&maxConcurrent, "max-concurrent", 1, "Maximum number of runs executing at once")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	srv := server.NewServer(serveAddr, cfg, st, server.Options{MaxConcurrent: maxConcurrent})

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
