package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP server",
		Long: `Start the evaluation server in a single process:
- HTTP API for ranking and set evaluations
- Shard aggregator fed by the event bus (memory or kafka)
- Run snapshots in memory or redis`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			// Override from flags
			if cmd.Flags().Changed("port") {
				appCfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("host") {
				appCfg.Server.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("bus") {
				appCfg.Bus.Type, _ = cmd.Flags().GetString("bus")
			}
			if err := appCfg.Validate(); err != nil {
				return err
			}

			srvCfg := server.DefaultConfig()
			srvCfg.Host = appCfg.Server.Host
			srvCfg.Port = appCfg.Server.Port
			srvCfg.Version = version

			srv, err := server.New(srvCfg, appCfg, log)
			if err != nil {
				return err
			}

			log.Info("Starting Rice Eval server",
				"version", version,
				"addr", appCfg.Address(),
				"bus", appCfg.Bus.Type,
				"snapshot", appCfg.Snapshot.Type,
			)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				if err != nil {
					srv.Stop(context.Background())
					return err
				}
			case <-ctx.Done():
				log.Info("Shutdown signal received")
			}

			return srv.Stop(context.Background())
		},
	}

	cmd.Flags().IntP("port", "p", 8090, "HTTP server port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	cmd.Flags().String("bus", "memory", "event bus type (memory, kafka)")

	return cmd
}
