// Package cli provides the command-line interface for atomsh.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atomstack-labs/atomsh/internal/cli/commands"
	"github.com/atomstack-labs/atomsh/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "atomsh",
		Short: "atomsh - atomic data asset pipelines",
		Long: `atomsh builds data pipelines from atomic assets: single YAML files
that bundle an ingestion source, a SQL transformation, and lineage.

Assets reference each other with ref(), are built in dependency order,
and deploy blue/green: every run writes fresh versioned targets and
swaps the public views only after a successful build.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./atomsh.yaml)")
	rootCmd.PersistentFlags().String("assets-dir", "", "Path to asset definitions")
	rootCmd.PersistentFlags().String("database", "", "Path to DuckDB warehouse (:memory: for ephemeral)")
	rootCmd.PersistentFlags().String("registry-path", "", "Path to deployment registry database")
	rootCmd.PersistentFlags().StringP("env", "e", "", "Environment name (prod pins the base namespace)")
	rootCmd.PersistentFlags().String("namespace", "", "Base namespace")
	rootCmd.PersistentFlags().String("branch", "", "Branch name override for namespace derivation")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Max assets building in parallel")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewRollbackCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewPublishCommand())
	rootCmd.AddCommand(commands.NewDAGCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
