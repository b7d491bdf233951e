package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomstack-labs/atomsh/internal/plan"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [assets...]",
		Short: "Build and deploy assets",
		Long: `Build the selected assets in dependency order and swap them live.

With no arguments every asset runs. Selectors use dbt-style markers:

  atomsh run fct_orders      only fct_orders
  atomsh run +fct_orders     fct_orders and everything it depends on
  atomsh run stg_orders+     stg_orders and everything depending on it
  atomsh run +fct_orders+    both directions

Each asset builds into a fresh versioned target; the public view is
repointed only after the build succeeds, so readers never see partial
data. A failing asset skips its dependents but does not stop
independent branches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			g, err := rt.loadGraph(ctx)
			if err != nil {
				return err
			}

			p, err := plan.Build(g, plan.ParseArgs(args))
			if err != nil {
				return err
			}
			rt.logger.Info("plan ready", "namespace", rt.namespace, "assets", len(p.Order))

			run, results, err := rt.manager.Run(ctx, g, p)
			if err != nil {
				return err
			}

			renderResults(cmd.OutOrStdout(), results)

			switch run.Status {
			case core.RunStatusCompleted:
				return nil
			case core.RunStatusCancelled:
				return fmt.Errorf("run cancelled")
			default:
				return fmt.Errorf("run failed: %s", run.Error)
			}
		},
	}
	return cmd
}
