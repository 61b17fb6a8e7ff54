package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/assistd/internal/audit"
)

var (
	auditRoute         string
	auditSince         string
	auditUntil         string
	auditMinRedactions int
	auditLimit         int
	auditOut           string
	auditJSON          bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and export the assistant audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter()
		if err != nil {
			return err
		}
		store, closeFn, err := openAuditStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		records, err := store.Query(cmd.Context(), filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if auditJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		for _, r := range records {
			fmt.Fprintf(out, "%s  %-24s conf=%.2f pii=%d  %s\n",
				r.CreatedAt.Format(time.RFC3339), r.Route, r.Confidence, r.PIIRedactions, r.ID)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No audit records.")
		}
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records to an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter()
		if err != nil {
			return err
		}
		store, closeFn, err := openAuditStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := audit.Export(cmd.Context(), store, filter, auditOut)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d record(s) to %s\n", n, auditOut)
		return nil
	},
}

func openAuditStore(cmd *cobra.Command) (*audit.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	database, err := a.database(cmd.Context())
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return audit.NewStore(database), a.Close, nil
}

// auditFilter builds a query filter from the shared flags. Dates accept
// RFC 3339 or YYYY-MM-DD.
func auditFilter() (audit.QueryFilter, error) {
	f := audit.QueryFilter{
		Route:         auditRoute,
		MinRedactions: auditMinRedactions,
		Limit:         auditLimit,
	}
	var err error
	if f.Since, err = parseDate(auditSince); err != nil {
		return f, fmt.Errorf("--since: %w", err)
	}
	if f.Until, err = parseDate(auditUntil); err != nil {
		return f, fmt.Errorf("--until: %w", err)
	}
	return f, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}

func init() {
	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().StringVar(&auditRoute, "route", "", "only records from this route")
		c.Flags().StringVar(&auditSince, "since", "", "only records at or after this time")
		c.Flags().StringVar(&auditUntil, "until", "", "only records at or before this time")
		c.Flags().IntVar(&auditMinRedactions, "min-redactions", 0, "only records with at least this many PII redactions")
	}
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "maximum number of records")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "print records as JSON")
	auditExportCmd.Flags().IntVar(&auditLimit, "limit", 0, "maximum number of records (0 for all)")
	auditExportCmd.Flags().StringVarP(&auditOut, "out", "o", "audit.xlsx", "output workbook path")

	auditCmd.AddCommand(auditListCmd, auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}
