// Package main is the entry point for the billpoll CLI.
//
// billpoll can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	billpoll watch -c config.yaml    # Await purchases against the backend
//	billpoll validate -c config.yaml # Validate configuration
//	billpoll plans --currency EUR    # Print the plan catalog
//	billpoll version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "billpoll",
	Short: "Reconcile hosted checkouts with the billing backend",
	Long: `billpoll waits for the billing backend to catch up after a hosted
checkout: it polls until a purchased team plan becomes active or newly
bought slots appear, backing off between attempts and giving up after a
deadline.

Quick start:
  1. Create a config file (billpoll.yaml)
  2. Run: billpoll watch -c billpoll.yaml

Example config:
  backend:
    url: https://billing.example.com
  watches:
    - name: team purchase
      kind: plan_purchased
      plan: team-professional-new-eur`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this billpoll binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "billpoll %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
