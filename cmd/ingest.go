package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/assistd/internal/content"
	"github.com/ziadkadry99/assistd/internal/progress"
	"github.com/ziadkadry99/assistd/internal/vectordb"
)

var (
	ingestDryRun   bool
	ingestMaxChars int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the content directory",
	Long: `Loads every markdown page under content.dir, splits each page into
heading sections, builds the chromem index and persists it under the data
directory. Use --dry-run to report what would be indexed without writing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		docs, err := content.Load(cfg.Content.Dir, cfg.Content.Patterns)
		if err != nil {
			return fmt.Errorf("loading content from %s: %w", cfg.Content.Dir, err)
		}
		if len(docs) == 0 {
			return fmt.Errorf("no pages matched %v under %s", cfg.Content.Patterns, cfg.Content.Dir)
		}

		reporter := progress.NewReporter("chunking")
		reporter.Start(len(docs))
		var chunks []content.Chunk
		for i, d := range docs {
			c, err := content.ChunkByHeading(d, ingestMaxChars)
			if err != nil {
				reporter.Finish()
				return err
			}
			chunks = append(chunks, c...)
			reporter.Update(i+1, d.ID)
		}
		reporter.Finish()

		fmt.Fprintf(out, "%d page(s), %d section(s)\n", len(docs), len(chunks))
		if ingestDryRun {
			for _, d := range docs {
				fmt.Fprintf(out, "  %-40s %s\n", d.ID, d.Title)
			}
			return nil
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		idx, err := vectordb.NewChromemIndex(vectordb.StaticSource(docs), a.log)
		if err != nil {
			return fmt.Errorf("creating chromem index: %w", err)
		}
		if err := idx.Build(ctx, docs); err != nil {
			return fmt.Errorf("building index: %w", err)
		}
		dir := persistDir(cfg)
		if err := idx.Persist(ctx, dir); err != nil {
			return fmt.Errorf("persisting index: %w", err)
		}
		if err := writeChunks(filepath.Join(dir, "chunks.json"), chunks); err != nil {
			return err
		}

		fmt.Fprintf(out, "Indexed %d document(s) into %s\n", idx.Count(), dir)
		return nil
	},
}

// writeChunks saves the section split next to the index for inspection.
func writeChunks(path string, chunks []content.Chunk) error {
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding chunks: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "report pages and sections without writing the index")
	ingestCmd.Flags().IntVar(&ingestMaxChars, "max-chars", 1500, "split sections longer than this many characters (0 disables)")
	rootCmd.AddCommand(ingestCmd)
}
