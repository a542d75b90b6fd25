package config

import (
	"fmt"
	"math"

	"github.com/jpalmerr/billpoll"
	"github.com/jpalmerr/billpoll/billing"
	"github.com/jpalmerr/billpoll/internal/backend"
)

// BuildPollOptions converts the poll section into SDK options.
// Unset fields produce no option, so the SDK defaults apply.
func BuildPollOptions(pc PollConfig) []billpoll.Option {
	var opts []billpoll.Option

	if pc.BackoffFactor != 0 {
		opts = append(opts, billpoll.WithBackoffFactor(pc.BackoffFactor))
	}
	if pc.WarningAfter != nil {
		opts = append(opts, billpoll.WithWarningAfter(pc.WarningAfter.Duration()))
	}
	if pc.RetryUntil != 0 {
		opts = append(opts, billpoll.WithRetryUntil(pc.RetryUntil.Duration()))
	}
	if pc.MaxDelay != 0 {
		opts = append(opts, billpoll.WithMaxDelay(pc.MaxDelay.Duration()))
	}

	return opts
}

// BuildWatches converts watch configs into reconciler watches, resolving
// plan IDs against the catalog.
func BuildWatches(cfg *Config) ([]billing.Watch, error) {
	watches := make([]billing.Watch, 0, len(cfg.Watches))

	for i, wc := range cfg.Watches {
		w := billing.Watch{
			Name:       wc.Name,
			Kind:       billing.WatchKind(wc.Kind),
			KnownSlots: wc.KnownSlots,
		}

		if w.Kind == billing.WatchPlanPurchased {
			plan, ok := billing.PlanByID(wc.Plan)
			if !ok {
				return nil, fmt.Errorf("watches[%d] (%s): unknown plan %q", i, wc.Name, wc.Plan)
			}
			w.Plan = plan
		}

		watches = append(watches, w)
	}

	return watches, nil
}

// BuildBackend creates the HTTP billing client described by bc.
func BuildBackend(bc BackendConfig) (*backend.Client, error) {
	opts := []backend.Option{
		backend.WithTimeout(bc.Timeout.Duration()),
	}

	if len(bc.Headers) > 0 {
		opts = append(opts, backend.WithHeaders(bc.Headers))
	}

	if bc.RateLimit > 0 {
		burst := bc.Burst
		if burst == 0 {
			burst = int(math.Max(1, math.Ceil(bc.RateLimit)))
		}
		opts = append(opts, backend.WithRateLimit(bc.RateLimit, burst))
	}

	return backend.New(bc.URL, opts...)
}
