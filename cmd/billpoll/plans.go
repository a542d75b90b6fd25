package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/billpoll/billing"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// plansCmd prints the plan catalog the way the plans screen computes it.
var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the plan catalog",
	Long: `Print the individual and team plans with prices for a region.

The currency is EUR for euro-area regions and USD otherwise, unless
--currency is given. Coupons are
applied to the matching plan card, and team plans are quoted for the given
number of seats.

Example:
  billpoll plans --region DE
  billpoll plans --currency usd
  billpoll plans --region US --coupon personal-usd=5 --seats 4`,
	RunE: runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)

	plansCmd.Flags().String("region", "", "ISO 3166 country code of the client")
	plansCmd.Flags().String("currency", "", "USD or EUR; overrides the region")
	plansCmd.Flags().StringArray("coupon", nil, "coupon as PLAN_ID=PRICE (repeatable)")
	plansCmd.Flags().Int("seats", 1, fmt.Sprintf("team seats to quote (1-%d)", billing.MaxTeamSeats))
}

func runPlans(cmd *cobra.Command, args []string) error {
	region, _ := cmd.Flags().GetString("region")
	rawCurrency, _ := cmd.Flags().GetString("currency")
	rawCoupons, _ := cmd.Flags().GetStringArray("coupon")
	seats, _ := cmd.Flags().GetInt("seats")

	var currency billing.Currency
	if rawCurrency != "" {
		c, err := billing.ParseCurrency(rawCurrency)
		if err != nil {
			return err
		}
		currency = c
	}

	coupons, err := parseCoupons(rawCoupons)
	if err != nil {
		return err
	}

	overview := billing.Overview(billing.OverviewInput{
		ClientRegion:     region,
		Currency:         currency,
		AvailableCoupons: coupons,
		Now:              time.Now(),
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Currency: %s\n\n", overview.Currency)
	renderCards(out, overview.Cards)

	fmt.Fprintln(out)
	return renderTeamQuotes(out, overview.Currency, seats)
}

// parseCoupons parses PLAN_ID=PRICE pairs.
func parseCoupons(raw []string) ([]billing.Coupon, error) {
	coupons := make([]billing.Coupon, 0, len(raw))
	for _, r := range raw {
		id, price, ok := strings.Cut(r, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid coupon %q: expected PLAN_ID=PRICE", r)
		}
		if _, known := billing.PlanByID(id); !known {
			return nil, fmt.Errorf("invalid coupon %q: unknown plan %q", r, id)
		}
		v, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coupon %q: %w", r, err)
		}
		coupons = append(coupons, billing.Coupon{PlanID: id, NewPrice: v})
	}
	return coupons, nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

func renderCards(w io.Writer, cards []billing.PlanCard) {
	table := newTable(w, []string{"Plan", "ID", "Price", "Hours", "Features"})
	for _, c := range cards {
		price := c.Offer.PriceLabel()
		if c.Offer.Discounted {
			price += fmt.Sprintf(" (was %s%s)", c.Offer.Currency.Symbol(), strconv.FormatFloat(c.Offer.OriginalPrice, 'f', -1, 64))
		}
		table.Append([]string{
			c.Offer.Name,
			c.Offer.ID,
			price,
			c.Offer.Hours(),
			strings.Join(c.Features, ", "),
		})
	}
	table.Render()
}

func renderTeamQuotes(w io.Writer, currency billing.Currency, seats int) error {
	table := newTable(w, []string{"Team plan", "ID", "Per seat", "Seats", "Total"})
	for _, p := range billing.TeamPlans() {
		if p.Currency != currency {
			continue
		}
		q, err := billing.TeamQuote(p, seats)
		if err != nil {
			return err
		}
		table.Append([]string{
			p.Name,
			p.ID,
			p.PriceLabel(),
			strconv.Itoa(seats),
			q.Label(),
		})
	}
	table.Render()
	return nil
}
