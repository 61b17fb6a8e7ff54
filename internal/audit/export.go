package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportSheet is the worksheet name written by Export.
const ExportSheet = "Audit"

var exportHeader = []any{
	"ID", "Created", "Route", "Confidence", "PII Redactions", "Tools", "Messages", "Response",
}

// Export writes the records matching filter to an xlsx workbook at path and
// returns how many rows were written.
func Export(ctx context.Context, store *Store, filter QueryFilter, path string) (int, error) {
	records, err := store.Query(ctx, filter)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return 0, fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &exportHeader); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(ExportSheet, 1, 1, bold); err != nil {
		return 0, fmt.Errorf("styling header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		row := []any{
			rec.ID,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Route,
			rec.Confidence,
			rec.PIIRedactions,
			toolNames(rec.Tools),
			transcript(rec.Messages),
			rec.Response,
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return 0, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(ExportSheet, "G", "H", 80); err != nil {
		return 0, err
	}
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("saving %s: %w", path, err)
	}
	return len(records), nil
}

func toolNames(tools []ToolInvocation) string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

// transcript renders messages one per line as "role: text".
func transcript(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Role+": "+m.Text())
	}
	return strings.Join(lines, "\n")
}
