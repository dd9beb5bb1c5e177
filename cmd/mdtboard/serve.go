package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/mdtboard/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the discussion engine as an HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer boundedShutdown(a)

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if err := a.store.StartSweeper(a.cfg.Session.SweepInterval()); err != nil {
				return err
			}
			if err := a.registry.Watch(ctx); err != nil {
				a.logger.Warn("specialty registry watch unavailable", "error", err)
			}

			srv := server.New(a.engine, a.store, a.buildParticipants, a.metrics, a.logger, server.Options{
				Addr:   a.cfg.Server.Addr,
				APIKey: a.cfg.Server.APIKey,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}
