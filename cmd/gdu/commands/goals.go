package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-defuse/internal/report"
	"github.com/l3aro/go-defuse/pkg/goal"
)

// goalsCmd represents the goals command
var goalsCmd = &cobra.Command{
	Use:   "goals <model | file.java...>",
	Short: "List the def-use coverage goals of classes",
	Long: `Computes the definition-use pairs of the given classes and lists them
as coverage goals. Input is either one class model (YAML or JSON) or one or
more Java source files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		typeNames, _ := cmd.Flags().GetStringSlice("type")

		var types []goal.Type
		for _, name := range typeNames {
			t, err := goal.ParseType(name)
			if err != nil {
				return err
			}
			types = append(types, t)
		}

		in, err := loadInput(args)
		if err != nil {
			return err
		}
		s, saveCache, err := openSession(in, flagsFromConfig())
		if err != nil {
			return err
		}
		goals, err := s.CoverageGoals()
		if err != nil {
			return fmt.Errorf("computing goals: %w", err)
		}
		saveCache()

		goals = filterTypes(goals, types)
		if jsonOutput {
			return report.WriteJSON(os.Stdout, report.NewGoalsReport(goals, s.ID(), Version))
		}
		return report.WriteGoalsText(os.Stdout, goals)
	},
}

// filterTypes keeps the goals of the given types, or all goals when types
// is empty.
func filterTypes(goals []*goal.Goal, types []goal.Type) []*goal.Goal {
	if len(types) == 0 {
		return goals
	}
	keep := make(map[goal.Type]bool, len(types))
	for _, t := range types {
		keep[t] = true
	}
	var r []*goal.Goal
	for _, g := range goals {
		if keep[g.Type] {
			r = append(r, g)
		}
	}
	return r
}

func init() {
	goalsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	goalsCmd.Flags().StringSliceP("type", "t", nil, "Only list goals of these types (intra_method, inter_method, intra_class, parameter)")
}
