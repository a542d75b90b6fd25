package main

import (
	"strings"
	"testing"
)

func TestRunPlans_EuroRegion(t *testing.T) {
	output, err := executeCmd(t, "plans", "--region", "DE", "--seats", "5")
	if err != nil {
		t.Fatalf("plans command error = %v", err)
	}

	for _, phrase := range []string{
		"Currency: EUR",
		"personal-eur",
		"€8 per month",
		"professional-new-eur",
		"team-professional-new-eur",
		"115€", // 5 seats of Team Professional
	} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
	if strings.Contains(output, "-usd") {
		t.Errorf("EUR output lists USD plans:\n%s", output)
	}
}

func TestRunPlans_DefaultsToUSD(t *testing.T) {
	output, err := executeCmd(t, "plans")
	if err != nil {
		t.Fatalf("plans command error = %v", err)
	}
	if !strings.Contains(output, "Currency: USD") || !strings.Contains(output, "$9 per month") {
		t.Errorf("output = %s", output)
	}
}

func TestRunPlans_CurrencyOverridesRegion(t *testing.T) {
	output, err := executeCmd(t, "plans", "--region", "DE", "--currency", "usd")
	if err != nil {
		t.Fatalf("plans command error = %v", err)
	}
	if !strings.Contains(output, "Currency: USD") {
		t.Errorf("output = %s", output)
	}
}

func TestRunPlans_Coupon(t *testing.T) {
	output, err := executeCmd(t, "plans", "--region", "US", "--coupon", "personal-usd=5")
	if err != nil {
		t.Fatalf("plans command error = %v", err)
	}
	if !strings.Contains(output, "$5 per month (was $9)") {
		t.Errorf("output missing discounted price\nGot: %s", output)
	}
}

func TestRunPlans_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"coupon without price", []string{"plans", "--coupon", "personal-usd"}, "expected PLAN_ID=PRICE"},
		{"coupon for unknown plan", []string{"plans", "--coupon", "gold=1"}, "unknown plan"},
		{"coupon price not a number", []string{"plans", "--coupon", "personal-usd=cheap"}, "invalid coupon"},
		{"unknown currency", []string{"plans", "--currency", "GBP"}, "unknown currency"},
		{"too many seats", []string{"plans", "--seats", "21"}, "quantity must be between 1 and 20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCmd(t, tt.args...)
			if err == nil {
				t.Fatal("plans command expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}
