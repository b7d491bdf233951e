package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show deployed assets in the current namespace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.registry.List(ctx, rt.namespace)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return renderStatusJSON(cmd, rt.namespace, records)
			case "table":
				renderStatusTable(cmd, rt.namespace, records)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")
	return cmd
}

func renderStatusTable(cmd *cobra.Command, namespace string, records []*core.DeploymentRecord) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Namespace: %s\n", namespace)
	if len(records) == 0 {
		fmt.Fprintln(w, "No deployed assets.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Asset", "Live Version", "Versions", "Updated"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.Asset,
			rec.LiveVersion,
			len(rec.History),
			rec.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}

func renderStatusJSON(cmd *cobra.Command, namespace string, records []*core.DeploymentRecord) error {
	type entry struct {
		Asset       string              `json:"asset"`
		LiveVersion string              `json:"live_version"`
		History     []core.HistoryEntry `json:"history"`
		UpdatedAt   string              `json:"updated_at"`
	}
	out := struct {
		Namespace string  `json:"namespace"`
		Assets    []entry `json:"assets"`
	}{Namespace: namespace, Assets: make([]entry, 0, len(records))}

	for _, rec := range records {
		out.Assets = append(out.Assets, entry{
			Asset:       rec.Asset,
			LiveVersion: rec.LiveVersion,
			History:     rec.History,
			UpdatedAt:   rec.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
