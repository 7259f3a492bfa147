package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"erevent/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "erevent",
	Short: "LAN device directory and file transfer coordinator",
	Long: `erevent lets devices on a local network find each other over mDNS,
register with a coordinator, and exchange files directly peer to peer.
The coordinator mediates discovery and the transfer handshake only;
file bytes never pass through it.`,
}

var verbose bool

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(
		newCoordinatorCmd(),
		newClientCmd(),
	)
	_ = config.Ensure()
}

// Execute runs the CLI.
func Execute() {
	cobra.OnInitialize(func() {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("erevent command failed")
	}
}
