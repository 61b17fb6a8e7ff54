package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "assistd",
	Short: "Retrieval-grounded website assistant for public-service content",
	Long: `assistd answers visitor questions from a markdown knowledge base. It
classifies intent, retrieves and cites pages, streams the answer over
SSE, NDJSON or WebSocket, and keeps a redacted audit trail of every
exchange.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".assistd.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
