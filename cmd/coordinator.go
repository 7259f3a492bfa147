package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"erevent/internal/config"
	"erevent/internal/coordinator"
	"erevent/internal/discovery"
	"erevent/internal/network"
	"erevent/internal/registry"
	"erevent/internal/server"
)

func newCoordinatorCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the directory and handshake coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := registry.New(config.LivenessTimeout())
			notifier := coordinator.NewHTTPNotifier(config.NotifyTimeout())
			coord := coordinator.New(reg, notifier, config.PendingTTL())

			hostname, _ := os.Hostname()
			if hostname == "" {
				hostname = "erevent-coordinator"
			}
			announcer, err := discovery.Announce(hostname, port)
			if err != nil {
				return err
			}
			defer announcer.Shutdown()

			log.Info().Str("ip", network.LocalIP()).Int("port", port).Msg("coordinator starting")
			return server.New(reg, coord).Run(ctx, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", config.HTTPPort(), "API and announcement port")
	return cmd
}
