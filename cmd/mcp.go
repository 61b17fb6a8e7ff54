package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/assistd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve content search and intent tools over MCP (stdio)",
	Long: `Starts a Model Context Protocol server on stdio. Agents get
search_content, classify_intent and get_page tools backed by the same index
and intent table as the HTTP server. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		mcpserver.Version = Version
		a.log.Infow("MCP server started on stdio", "content", cfg.Content.Dir, "retriever", cfg.Retriever.Backend)

		return mcpserver.NewServer(a.retriever, a.classifier, a.source).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
