package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the diagnosis API server",
		Long: `Serve the Alertmanager webhook (POST /diagnose_alert), direct diagnosis
(POST /api/v1/diagnose), the diagnosis journal, the /ws/diagnoses event
stream, /metrics and a gRPC health service until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := a.close(closeCtx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "shutdown: %v\n", err)
				}
			}()

			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if err := a.buildEngine(ctx, true); err != nil {
				return err
			}

			srv, err := server.New(server.Config{
				Host:            a.cfg.Server.Host,
				Port:            a.cfg.Server.Port,
				GRPCPort:        a.cfg.Server.GRPCPort,
				AllowedOrigins:  a.cfg.Server.AllowedOrigins,
				RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
			}, a.engine,
				server.WithJournal(a.journal),
				server.WithMetrics(a.metrics),
				server.WithAudit(a.audit),
				server.WithEventHub(a.hub),
				server.WithLogger(a.logger.Named("http")),
			)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			a.watchConfig(ctx)

			<-ctx.Done()
			a.logger.Info("received shutdown signal")

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				a.logger.Error("error stopping server", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	return cmd
}
