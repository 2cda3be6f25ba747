package cli

import (
	"log/slog"
	"os"

	"livecast/internal/platform/config"
	"livecast/internal/platform/logger"

	"github.com/spf13/cobra"
)

var (
	relayURL string
	log      *slog.Logger
)

// rootCmd is the base command; every subcommand shares the relay address and
// logging flags.
var rootCmd = &cobra.Command{
	Use:   "livecast",
	Short: "Live chunked-broadcast pipeline: relay server, broadcaster, and viewer",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = config.Load()
		if relayURL == "" {
			relayURL = config.GetEnv("RELAY_URL", "http://localhost:8080")
		}
		log = logger.New(
			config.GetEnv("LOG_LEVEL", "info"),
			config.GetEnv("LOG_FORMAT", "json"),
		)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (default $RELAY_URL or http://localhost:8080)")
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the CLI. Called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
