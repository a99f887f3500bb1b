package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ailib/internal/httpapi"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API with background job workers",
		Example: "  ailibd serve --addr :8080 --config ailib.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			mgr, log, shutdownTracing, err := newManager(cfg, cmd.ErrOrStderr(), cmd.OutOrStdout(), prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer func() {
				_ = mgr.Close()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(ctx)
			}()

			ctx := cmd.Context()
			httpapi.Configure(cfg)
			httpapi.SetLogger(log)
			httpapi.SetBaseContext(ctx)
			mgr.StartWorkers(ctx, cfg.Workers)

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpapi.NewMux(mgr),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Int("workers", cfg.Workers).Msg("ailibd listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Error().Err(err).Msg("graceful shutdown")
			}
			return nil
		},
	}
}
