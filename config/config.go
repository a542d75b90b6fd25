// Package config provides YAML configuration parsing for the billpoll CLI.
//
// It lets the billpoll binary reconcile purchases against a billing backend
// from a configuration file, as an alternative to calling the SDK directly.
//
// Example configuration:
//
//	title: Team checkout
//	status_port: 8080
//
//	backend:
//	  url: https://billing.example.com
//	  headers:
//	    Authorization: Bearer ${BILLING_TOKEN}
//	  timeout: 10s
//	  rate_limit: 5
//
//	poll:
//	  backoff_factor: 1.2
//	  warning_after: 40s
//	  retry_until: 2m
//
//	watches:
//	  - name: team purchase
//	    kind: plan_purchased
//	    plan: team-professional-new-eur
//	  - name: extra seats
//	    kind: slots_added
//	    known_slots: 3
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jpalmerr/billpoll/billing"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the status page title. Defaults to "billpoll" if not set.
	Title string `yaml:"title"`

	// StatusPort serves session status over HTTP when set. Zero disables
	// the status server.
	StatusPort int `yaml:"status_port"`

	Backend BackendConfig `yaml:"backend"`
	Poll    PollConfig    `yaml:"poll"`

	// Watches are the awaits run by `billpoll watch`.
	Watches []WatchConfig `yaml:"watches"`
}

// BackendConfig describes the billing backend HTTP API.
type BackendConfig struct {
	// URL is the API base URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Headers are sent with every request. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// RateLimit is the sustained request rate per second. Zero keeps the
	// client default.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the token bucket size. Defaults to the rate, at least 1.
	Burst int `yaml:"burst"`
}

// PollConfig holds the poll session settings shared by every watch.
// Unset fields keep the SDK defaults.
type PollConfig struct {
	BackoffFactor float64 `yaml:"backoff_factor"`

	// WarningAfter is a pointer so that an explicit 0s can disable the
	// warning while an absent key keeps the default.
	WarningAfter *Duration `yaml:"warning_after"`

	RetryUntil Duration `yaml:"retry_until"`
	MaxDelay   Duration `yaml:"max_delay"`
}

// WatchConfig defines a single await.
type WatchConfig struct {
	// Name identifies the watch in logs and on the status page.
	Name string `yaml:"name"`

	// Kind is "plan_purchased" or "slots_added".
	Kind string `yaml:"kind"`

	// Plan is the team plan ID, for kind plan_purchased.
	Plan string `yaml:"plan"`

	// KnownSlots is the current slot count, for kind slots_added.
	KnownSlots int `yaml:"known_slots"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the backend URL and header values.
// The backend timeout defaults to 10s.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = Duration(10 * time.Second)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535, got %d", c.StatusPort)
	}

	if err := c.Backend.expandAndValidate(); err != nil {
		return err
	}
	if err := c.Poll.validate(); err != nil {
		return err
	}

	if len(c.Watches) == 0 {
		return errors.New("at least one watch must be defined")
	}

	seen := make(map[string]struct{}, len(c.Watches))
	for i := range c.Watches {
		w := &c.Watches[i]

		if w.Name == "" {
			return fmt.Errorf("watches[%d]: name is required", i)
		}
		if _, exists := seen[w.Name]; exists {
			return fmt.Errorf("watches[%d] (%s): duplicate watch name", i, w.Name)
		}
		seen[w.Name] = struct{}{}

		switch billing.WatchKind(w.Kind) {
		case billing.WatchPlanPurchased:
			if w.Plan == "" {
				return fmt.Errorf("watches[%d] (%s): plan is required for kind %s", i, w.Name, w.Kind)
			}
			if !isTeamPlan(w.Plan) {
				return fmt.Errorf("watches[%d] (%s): unknown team plan %q", i, w.Name, w.Plan)
			}
			if w.KnownSlots != 0 {
				return fmt.Errorf("watches[%d] (%s): known_slots is only valid for kind %s", i, w.Name, billing.WatchSlotsAdded)
			}
		case billing.WatchSlotsAdded:
			if w.KnownSlots < 0 {
				return fmt.Errorf("watches[%d] (%s): known_slots cannot be negative, got %d", i, w.Name, w.KnownSlots)
			}
			if w.Plan != "" {
				return fmt.Errorf("watches[%d] (%s): plan is only valid for kind %s", i, w.Name, billing.WatchPlanPurchased)
			}
		case "":
			return fmt.Errorf("watches[%d] (%s): kind is required", i, w.Name)
		default:
			return fmt.Errorf("watches[%d] (%s): kind must be %s or %s, got %q",
				i, w.Name, billing.WatchPlanPurchased, billing.WatchSlotsAdded, w.Kind)
		}
	}

	return nil
}

func (b *BackendConfig) expandAndValidate() error {
	if b.URL == "" {
		return errors.New("backend: url is required")
	}
	expanded, err := expandEnvVars(b.URL)
	if err != nil {
		return fmt.Errorf("backend: url: %w", err)
	}
	b.URL = expanded

	parsedURL, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("backend: invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("backend: url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("backend: url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	for k, v := range b.Headers {
		if strings.TrimSpace(k) == "" {
			return errors.New("backend: header name cannot be empty")
		}
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("backend: headers[%s]: %w", k, err)
		}
		b.Headers[k] = expanded
	}

	if b.Timeout.Duration() < 0 {
		return fmt.Errorf("backend: timeout cannot be negative, got %s", b.Timeout.Duration())
	}
	if b.Timeout.Duration() < time.Second {
		return fmt.Errorf("backend: timeout must be at least 1s, got %s", b.Timeout.Duration())
	}

	if b.RateLimit < 0 {
		return fmt.Errorf("backend: rate_limit cannot be negative, got %g", b.RateLimit)
	}
	if b.Burst < 0 {
		return fmt.Errorf("backend: burst cannot be negative, got %d", b.Burst)
	}
	if b.Burst > 0 && b.RateLimit == 0 {
		return errors.New("backend: burst requires rate_limit")
	}

	return nil
}

func (p *PollConfig) validate() error {
	if p.BackoffFactor != 0 && p.BackoffFactor <= 1 {
		return fmt.Errorf("poll: backoff_factor must be greater than 1, got %g", p.BackoffFactor)
	}
	if math.IsInf(p.BackoffFactor, 0) || math.IsNaN(p.BackoffFactor) {
		return fmt.Errorf("poll: backoff_factor must be finite, got %g", p.BackoffFactor)
	}
	if p.WarningAfter != nil && p.WarningAfter.Duration() < 0 {
		return fmt.Errorf("poll: warning_after cannot be negative, got %s", p.WarningAfter.Duration())
	}
	if p.RetryUntil.Duration() < 0 {
		return fmt.Errorf("poll: retry_until cannot be negative, got %s", p.RetryUntil.Duration())
	}
	if p.MaxDelay.Duration() < 0 {
		return fmt.Errorf("poll: max_delay cannot be negative, got %s", p.MaxDelay.Duration())
	}
	if p.WarningAfter != nil && p.RetryUntil != 0 && p.WarningAfter.Duration() >= p.RetryUntil.Duration() {
		return fmt.Errorf("poll: warning_after (%s) must be shorter than retry_until (%s)",
			p.WarningAfter.Duration(), p.RetryUntil.Duration())
	}
	return nil
}

func isTeamPlan(id string) bool {
	for _, p := range billing.TeamPlans() {
		if p.ID == id {
			return true
		}
	}
	return false
}
