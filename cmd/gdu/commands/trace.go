package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-defuse/internal/report"
	"github.com/l3aro/go-defuse/pkg/model"
)

// traceCmd represents the trace command
var traceCmd = &cobra.Command{
	Use:   "trace <model | file.java...>",
	Short: "Show which definition reached each use in one test",
	Long: `Replays the trace of a single test and lists every use it executed with
the definition active at that point and the goal the pair covers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tracesPath, _ := cmd.Flags().GetString("traces")
		testID, _ := cmd.Flags().GetString("test")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		in, err := loadInput(args)
		if err != nil {
			return err
		}
		s, saveCache, err := openSession(in, flagsFromConfig())
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
		tt, ok := traces.Test(testID)
		if !ok {
			if matches := fuzzy.Find(testID, traces.IDs()); len(matches) > 0 {
				return fmt.Errorf("test %q not found in %s\nDid you mean: %s?", testID, tracesPath, matches[0].Str)
			}
			return fmt.Errorf("test %q not found in %s", testID, tracesPath)
		}
		res, err := tt.Result(s.Pool(), s.Registry())
		if err != nil {
			return err
		}
		if res.TimedOut {
			logger.Warn("test timed out, its trace is ignored when scoring", "test", testID)
		}

		rows := report.BuildTimeline(res.Trace, s.Catalog())
		if jsonOutput {
			if rows == nil {
				rows = []report.TimelineRow{}
			}
			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		return report.WriteTimelineText(os.Stdout, testID, rows)
	},
}

func init() {
	traceCmd.Flags().StringP("traces", "t", "", "Trace file of the test suite (YAML or JSON)")
	traceCmd.Flags().String("test", "", "ID of the test to show")
	_ = traceCmd.MarkFlagRequired("traces")
	_ = traceCmd.MarkFlagRequired("test")
	traceCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
