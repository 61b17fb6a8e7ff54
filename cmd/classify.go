package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/assistd/internal/intent"
)

var (
	classifyAll  bool
	classifyJSON bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <query>",
	Short: "Classify a query against the intent table",
	Args:  cobra.MinimumNArgs(1),
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

		query := strings.Join(args, " ")
		var matches []intent.Match
		if classifyAll {
			matches = a.classifier.MatchAll(query)
		} else {
			matches = []intent.Match{a.classifier.Classify(query)}
		}

		out := cmd.OutOrStdout()
		if classifyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if classifyAll {
				return enc.Encode(matches)
			}
			return enc.Encode(matches[0])
		}

		fmt.Fprintf(out, "strategy: %s\n", a.classifier.Strategy())
		for _, m := range matches {
			fmt.Fprintf(out, "%-16s %.2f  %s\n", m.ID, m.Confidence, m.TargetPath)
			for k, v := range m.Slots {
				fmt.Fprintf(out, "  slot %s=%s\n", k, v)
			}
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyAll, "all", false, "show every intent ranked by score")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print the match as JSON")
	rootCmd.AddCommand(classifyCmd)
}
