package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-defuse/internal/config"
	"github.com/l3aro/go-defuse/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration, parser and cache",
	Long: `Checks the configuration and verifies that the Java parser, the pure
method table and the goal cache are usable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := healthcheck.Check(appConfig, "", effectiveConfigPath(cmd))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if result.Failed() {
			return fmt.Errorf("health check failed: one or more components are not usable")
		}
		return nil
	},
}

// effectiveConfigPath returns the config file in use, empty when only
// defaults apply.
func effectiveConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if fileExists(config.ProjectConfigFilePath()) {
		return config.ProjectConfigFilePath()
	}
	if home, err := os.UserHomeDir(); err == nil {
		global := filepath.Join(home, ".gdu", "config.yaml")
		if fileExists(global) {
			return global
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Print("Using config: defaults (run 'gdu init' to create a config file)\n\n")
	} else {
		fmt.Printf("Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	}

	for _, c := range result.Components() {
		fmt.Printf("%s:\n", c.Name)
		if c.Detail != "" {
			fmt.Printf("  %s\n", c.Detail)
		}
		fmt.Printf("  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
		if c.Error != "" {
			fmt.Printf("  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready":
		return "✓"
	case "disabled":
		return "-"
	case "error":
		return "✗"
	default:
		return "?"
	}
}
