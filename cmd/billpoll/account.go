package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jpalmerr/billpoll/billing"
	"github.com/jpalmerr/billpoll/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// accountCmd prints the caller's billing state as the plans screen sees it.
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the current plan and team subscriptions",
	Long: `Load the account statement and team subscriptions from the billing
backend and print the current plan, remaining hours and active team
subscriptions.

Example:
  billpoll account -c billpoll.yaml --region DE`,
	RunE: runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)

	accountCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	accountCmd.Flags().String("region", "", "ISO 3166 country code of the client")
	_ = accountCmd.MarkFlagRequired("config")
}

// account is everything the plans screen loads up front.
type account struct {
	statement     billing.AccountStatement
	showPaymentUI bool
	teams         []billing.TeamSubscription
}

func runAccount(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	region, _ := cmd.Flags().GetString("region")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := config.BuildBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	defer client.Close()

	acc, err := loadAccount(cmd.Context(), client)
	if err != nil {
		return err
	}

	now := time.Now()
	renderAccount(cmd.OutOrStdout(), acc, billing.Overview(billing.OverviewInput{
		Statement:    acc.statement,
		ClientRegion: region,
		Now:          now,
	}), now)
	return nil
}

// loadAccount fetches the account concurrently; the first failure cancels
// the other requests.
func loadAccount(ctx context.Context, b billing.Backend) (account, error) {
	var acc account
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		st, err := b.AccountStatement(ctx)
		if err != nil {
			return fmt.Errorf("load account statement: %w", err)
		}
		acc.statement = st
		return nil
	})
	g.Go(func() error {
		show, err := b.ShowPaymentUI(ctx)
		if err != nil {
			return fmt.Errorf("load payment ui flag: %w", err)
		}
		acc.showPaymentUI = show
		return nil
	})
	g.Go(func() error {
		teams, err := b.TeamSubscriptions(ctx)
		if err != nil {
			return fmt.Errorf("load team subscriptions: %w", err)
		}
		acc.teams = teams
		return nil
	})

	if err := g.Wait(); err != nil {
		return account{}, err
	}
	return acc, nil
}

func renderAccount(w io.Writer, acc account, o billing.PlansOverview, now time.Time) {
	fmt.Fprintf(w, "Current plan:    %s\n", o.CurrentPlanName())
	fmt.Fprintf(w, "Remaining hours: %s\n", o.RemainingHours)
	fmt.Fprintf(w, "Currency:        %s\n", o.Currency)
	if !acc.showPaymentUI {
		fmt.Fprintln(w, "Payment screens are disabled for this account.")
	}
	if len(o.AssignedTeamSubscriptions) > 0 {
		fmt.Fprintf(w, "Seats assigned:  %d\n", len(o.AssignedTeamSubscriptions))
	}

	fmt.Fprintln(w)
	table := newTable(w, []string{"Team subscription", "Plan", "Seats", "Started", "Status"})
	for _, ts := range acc.teams {
		name := ts.PlanID
		if p, ok := billing.PlanByID(ts.PlanID); ok {
			name = p.Name
		}
		status := "inactive"
		if ts.IsActive(now) {
			status = "active"
		}
		table.Append([]string{
			ts.ID,
			name,
			fmt.Sprintf("%d", ts.Quantity),
			ts.StartDate.Format("2006-01-02"),
			status,
		})
	}
	table.Render()
}
