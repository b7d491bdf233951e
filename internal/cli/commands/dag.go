package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atomstack-labs/atomsh/internal/dag"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the asset dependency graph",
		Long: `Display the dependency graph over all assets, grouped by execution
level. Assets in the same level share no dependencies and can build in
parallel.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			switch format {
			case "json":
				return dagJSON(cmd, g)
			case "text":
				dagText(cmd, g)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text|json)")
	return cmd
}

// executionLevels groups assets so every asset lands one level below its
// deepest dependency.
func executionLevels(g *dag.Graph) [][]string {
	depth := make(map[string]int, g.Len())

	var level func(name string) int
	level = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}
		d := 0
		for _, parent := range g.Parents(name) {
			if pd := level(parent) + 1; pd > d {
				d = pd
			}
		}
		depth[name] = d
		return d
	}

	max := 0
	for _, name := range g.Names() {
		if d := level(name); d > max {
			max = d
		}
	}

	levels := make([][]string, max+1)
	for _, name := range g.Names() {
		levels[depth[name]] = append(levels[depth[name]], name)
	}
	return levels
}

func dagText(cmd *cobra.Command, g *dag.Graph) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Dependency graph: %d assets\n\n", g.Len())

	for i, level := range executionLevels(g) {
		fmt.Fprintf(w, "Level %d:\n", i)
		for _, name := range level {
			fmt.Fprintf(w, "  %s", name)
			if deps := g.Parents(name); len(deps) > 0 {
				fmt.Fprintf(w, "  <- %s", strings.Join(deps, ", "))
			}
			fmt.Fprintln(w)
		}
	}
}

func dagJSON(cmd *cobra.Command, g *dag.Graph) error {
	type node struct {
		Name       string   `json:"name"`
		DependsOn  []string `json:"depends_on,omitempty"`
		Dependents []string `json:"dependents,omitempty"`
	}
	out := struct {
		Assets []node     `json:"assets"`
		Levels [][]string `json:"levels"`
	}{Levels: executionLevels(g)}

	for _, name := range g.Names() {
		out.Assets = append(out.Assets, node{
			Name:       name,
			DependsOn:  g.Parents(name),
			Dependents: g.Children(name),
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
