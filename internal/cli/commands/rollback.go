package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "rollback [assets...]",
		Short: "Repoint assets to their previous version",
		Long: `Roll back assets to the version deployed before the current one.

Rollback moves no data: the deployment registry pointer and the public
view are repointed at the prior versioned target, which is still
materialized. History is never rewritten, so a later run can deploy
forward again.

Name the assets to roll back, or pass --all for every deployed asset in
the namespace.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("name assets to roll back or pass --all")
			}
			if len(args) > 0 && all {
				return fmt.Errorf("--all cannot be combined with asset names")
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := rt.manager.Rollback(ctx, args)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return fmt.Errorf("no deployed assets in namespace %q", rt.namespace)
			}

			renderResults(cmd.OutOrStdout(), results)

			failed := 0
			for _, r := range results {
				if r.Failed() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d assets could not be rolled back", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Roll back every deployed asset in the namespace")
	return cmd
}
