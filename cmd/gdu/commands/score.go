package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-defuse/internal/log"
	"github.com/l3aro/go-defuse/internal/report"
	"github.com/l3aro/go-defuse/pkg/model"
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score <model | file.java...>",
	Short: "Score a test suite's traces against the coverage goals",
	Long: `Replays the recorded execution traces of a test suite and computes the
suite's def-use fitness and coverage. A fitness of 0 means every goal is
covered.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tracesPath, _ := cmd.Flags().GetString("traces")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		flags := flagsFromConfig()
		if cmd.Flags().Changed("workers") {
			flags.workers, _ = cmd.Flags().GetInt("workers")
		}
		if cmd.Flags().Changed("alternative") {
			flags.alternative, _ = cmd.Flags().GetBool("alternative")
		}
		if cmd.Flags().Changed("aliases") {
			flags.aliases, _ = cmd.Flags().GetBool("aliases")
		}
		if cmd.Flags().Changed("verify") {
			flags.verify, _ = cmd.Flags().GetBool("verify")
		}
		if flags.workers < 0 {
			return fmt.Errorf("workers must be non-negative")
		}

		in, err := loadInput(args)
		if err != nil {
			return err
		}
		s, saveCache, err := openSession(in, flags)
		if err != nil {
			return err
		}
		if _, err := s.CoverageGoals(); err != nil {
			return fmt.Errorf("computing goals: %w", err)
		}
		saveCache()

		traces, err := model.LoadTracesFile(tracesPath)
		if err != nil {
			return err
		}
		results, err := traces.Results(s.Pool(), s.Registry())
		if err != nil {
			return err
		}

		var spinner *log.ProgressSpinner
		if !jsonOutput && isatty.IsTerminal(os.Stderr.Fd()) {
			spinner = log.NewProgressSpinner(os.Stderr, fmt.Sprintf("Scoring %d test(s)", len(results)))
			spinner.Start()
		}
		res, err := s.SuiteFitness(context.Background(), results)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			return fmt.Errorf("scoring suite: %w", err)
		}

		if jsonOutput {
			return report.WriteJSON(os.Stdout, report.NewSuiteReport(res, s.ID(), Version))
		}
		return report.WriteSuiteText(os.Stdout, res)
	},
}

func init() {
	scoreCmd.Flags().StringP("traces", "t", "", "Trace file of the test suite (YAML or JSON)")
	_ = scoreCmd.MarkFlagRequired("traces")
	scoreCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	scoreCmd.Flags().IntP("workers", "w", 0, "Goals scored concurrently (0 = one per CPU)")
	scoreCmd.Flags().Bool("alternative", false, "Use the alternative suite fitness")
	scoreCmd.Flags().Bool("aliases", false, "Add goals for values reached under different names")
	scoreCmd.Flags().Bool("verify", false, "Cross-check every fitness value against direct coverage")
}
