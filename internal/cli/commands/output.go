package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// renderResults prints per-asset outcomes of a run or rollback.
func renderResults(w io.Writer, results []core.AssetResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Asset", "Status", "Version", "Rows", "Duration"})

	for _, r := range results {
		t.AppendRow(table.Row{
			r.Asset,
			string(r.Status),
			r.Version,
			formatRows(r),
			formatDuration(r),
		})
	}
	t.Render()

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "  %s: %s\n", r.Asset, r.Error)
		}
	}
}

func formatRows(r core.AssetResult) string {
	if r.RowsLoaded == 0 {
		return ""
	}
	return fmt.Sprintf("%d", r.RowsLoaded)
}

func formatDuration(r core.AssetResult) string {
	total := r.IngestMS + r.TransformMS
	if total == 0 {
		return ""
	}
	return (time.Duration(total) * time.Millisecond).String()
}
