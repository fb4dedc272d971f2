// Package commands provides the CLI commands for the go-defuse tool.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-defuse/internal/config"
	"github.com/l3aro/go-defuse/internal/log"
)

// Version is reported in JSON output.
var Version = "dev"

var (
	appConfig *config.Config
	logger    log.Logger = log.Nop()
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gdu",
	Short: "go-defuse - Def-use coverage for Java classes",
	Long: `go-defuse computes definition-use coverage goals of Java classes and
scores execution traces of a test suite against them.

Commands:
  goals       List the coverage goals of a class model or Java sources
  score       Score a test suite's traces against the goals
  trace       Show which definition reached each use in one test
  schema      Print the JSON schema of class models or reports
  cache       Inspect or clear the goal cache
  init        Create a configuration file interactively
  doctor      Check configuration, parser and goal cache

Use "gdu [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

// setup loads the configuration, applies flag overrides and creates the
// logger every command shares.
func setup(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")

	var err error
	if configPath != "" {
		appConfig, err = config.LoadFromFile(configPath)
	} else {
		appConfig, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		appConfig.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("json-logs") {
		appConfig.JSONLogs, _ = cmd.Flags().GetBool("json-logs")
	}
	level, err := log.ParseLevel(appConfig.LogLevel)
	if err != nil {
		return err
	}

	logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: appConfig.JSONLogs,
		Stderr:     os.Stderr,
		Prefix:     "gdu",
	})
	return nil
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (YAML or TOML)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	RootCmd.AddCommand(goalsCmd)
	RootCmd.AddCommand(scoreCmd)
	RootCmd.AddCommand(traceCmd)
	RootCmd.AddCommand(schemaCmd)
	RootCmd.AddCommand(cacheCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(doctorCmd)
}
