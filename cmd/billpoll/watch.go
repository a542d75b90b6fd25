package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jpalmerr/billpoll"
	"github.com/jpalmerr/billpoll/billing"
	"github.com/jpalmerr/billpoll/config"
	"github.com/jpalmerr/billpoll/dashboard"
	"github.com/jpalmerr/billpoll/internal/metrics"
	"github.com/jpalmerr/billpoll/internal/server"
	"github.com/jpalmerr/billpoll/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// watchCmd runs every configured watch until it finishes.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Await purchases against the billing backend",
	Long: `Run every watch from the config file concurrently.

Each watch polls the billing backend with backoff until its condition
holds (the team plan is active, or more slots exist than known), or until
the poll deadline passes.

When status_port is set, session status is served over HTTP:
  /             status page
  /api/sessions JSON snapshot
  /api/sse      live updates
  /metrics      Prometheus metrics

Exit codes:
  0 - every watch succeeded
  1 - at least one watch timed out or was cancelled

Example:
  billpoll watch -c billpoll.yaml
  billpoll watch -c billpoll.yaml --keep-serving`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().Bool("keep-serving", false, "keep the status server running after all watches finish")
	watchCmd.Flags().BoolP("verbose", "v", false, "log every attempt")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	watches, err := config.BuildWatches(cfg)
	if err != nil {
		return fmt.Errorf("failed to build watches: %w", err)
	}

	client, err := config.BuildBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	defer client.Close()

	st := store.NewMemoryStore()
	recorder := metrics.New()

	pollOpts := append(config.BuildPollOptions(cfg.Poll),
		billpoll.WithObserver(st.Observe),
		billpoll.WithObserver(recorder.Observe),
	)
	reconciler, err := billing.NewReconciler(client,
		billing.WithPollOptions(pollOpts...),
		billing.WithReconcilerLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	// cancel on SIGINT/SIGTERM; running sessions end with OnStop
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StatusPort != 0 {
		srv := server.NewServer(st, server.Config{
			Port:    cfg.StatusPort,
			Metrics: recorder.Handler(),
			Assets:  dashboard.Assets,
			Title:   cfg.Title,
		}, logger)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	logger.Info("config loaded",
		"watches", len(watches),
		"backend", cfg.Backend.URL,
		"status_port", cfg.StatusPort,
	)

	watchErr := watchAll(ctx, reconciler, watches, logger, cmd.OutOrStdout())

	keepServing, _ := cmd.Flags().GetBool("keep-serving")
	if keepServing && cfg.StatusPort != 0 && ctx.Err() == nil {
		logger.Info("all watches finished, serving status until interrupted")
		<-ctx.Done()
	}

	return watchErr
}

// watchAll runs every watch concurrently and waits for all of them.
// It returns an error naming the first watch that did not succeed.
func watchAll(ctx context.Context, r *billing.Reconciler, watches []billing.Watch, logger *slog.Logger, out io.Writer) error {
	var (
		g     errgroup.Group
		outMu sync.Mutex
	)

	report := func(format string, a ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, a...)
	}

	for _, w := range watches {
		g.Go(func() error {
			session, err := r.Watch(ctx, w, billpoll.Callbacks[billing.WatchPayload]{
				OnSuccess: func(p billing.WatchPayload) {
					report("%-24s succeeded  %s\n", w.Name, describePayload(w, p))
				},
				OnWarning: func() {
					logger.Warn("watch is taking longer than expected", "watch", w.Name)
				},
			})
			if err != nil {
				return fmt.Errorf("watch %q: %w", w.Name, err)
			}

			outcome := session.Wait()
			if outcome != billpoll.OutcomeSucceeded {
				report("%-24s %s after %d attempts\n", w.Name, outcome, session.Attempts())
				return fmt.Errorf("watch %q did not succeed: %s", w.Name, outcome)
			}
			return nil
		})
	}

	return g.Wait()
}

func describePayload(w billing.Watch, p billing.WatchPayload) string {
	switch w.Kind {
	case billing.WatchPlanPurchased:
		return fmt.Sprintf("%s active (%d team subscriptions, %d slots)", w.Plan.Name, len(p.Subscriptions), len(p.Slots))
	case billing.WatchSlotsAdded:
		return fmt.Sprintf("%d slots (was %d)", len(p.Slots), w.KnownSlots)
	default:
		return ""
	}
}
