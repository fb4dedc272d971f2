// Package main implements the go-defuse CLI (gdu).
// It computes data-flow coverage goals of Java classes and scores test
// suites against them.
package main

import (
	"os"

	"github.com/l3aro/go-defuse/cmd/gdu/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`gdu version {{.Version}}
`)
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}
	commands.Version = version

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
