package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomstack-labs/atomsh/internal/connector"
)

// NewPublishCommand creates the publish command.
func NewPublishCommand() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "publish <asset>",
		Short: "Export an asset's live data to an external destination",
		Long: `Publish reads the live version of an asset and writes it to an
external destination. Currently CSV export is supported:

  atomsh publish fct_orders --to exports/fct_orders.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			publisher := connector.NewCSVPublisher(rt.executor.DB())
			if err := rt.manager.Publish(ctx, publisher, args[0], to); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s\n", args[0], to)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Destination path for the export")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
