package main

import (
	"fmt"

	"github.com/jpalmerr/billpoll/billing"
	"github.com/jpalmerr/billpoll/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without contacting the backend.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a billpoll configuration file without contacting the backend.

This command parses the YAML, expands environment variables, and validates
all fields, including that every watched plan exists in the catalog. It's
useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  billpoll validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	watches, err := config.BuildWatches(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Backend:       %s\n", cfg.Backend.URL)
	if cfg.StatusPort != 0 {
		fmt.Fprintf(out, "  Status port:   %d\n", cfg.StatusPort)
	} else {
		fmt.Fprintf(out, "  Status port:   disabled\n")
	}
	fmt.Fprintf(out, "  Watches:       %d\n", len(watches))
	for _, w := range watches {
		fmt.Fprintf(out, "    - %s (%s)\n", w.Name, describeWatch(w))
	}

	return nil
}

func describeWatch(w billing.Watch) string {
	if w.Kind == billing.WatchPlanPurchased {
		return fmt.Sprintf("%s: %s, %s", w.Kind, w.Plan.ID, w.Plan.PriceLabel())
	}
	return fmt.Sprintf("%s: more than %d slots", w.Kind, w.KnownSlots)
}
