package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-defuse/internal/report"
	"github.com/l3aro/go-defuse/pkg/model"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:       "schema [model|report]",
	Short:     "Print a JSON schema",
	Long:      `Prints the JSON schema of class model files (default) or of the JSON reports written by goals and score.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"model", "report"},
	RunE: func(cmd *cobra.Command, args []string) error {
		which := "model"
		if len(args) == 1 {
			which = args[0]
		}
		switch which {
		case "model":
			fmt.Println(model.Schema)
		case "report":
			fmt.Println(report.Schema)
		default:
			return fmt.Errorf("unknown schema %q (use 'model' or 'report')", which)
		}
		return nil
	},
}
