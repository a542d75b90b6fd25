// Package billpoll reconciles a client with a backend that learns about
// changes asynchronously, such as a subscription bought through a hosted
// payment checkout. It polls a caller-supplied probe until the probe
// reports completion, a deadline passes, or the caller cancels.
//
// # Quick Start
//
// Wait for a backend to report an active subscription:
//
//	probe := func(ctx context.Context) (billpoll.Result[[]billing.TeamSubscription], error) {
//	    subs, err := backend.TeamSubscriptions(ctx)
//	    if err != nil {
//	        return billpoll.Pending[[]billing.TeamSubscription](), err
//	    }
//	    if hasActive(subs) {
//	        return billpoll.Done(subs), nil
//	    }
//	    return billpoll.Pending[[]billing.TeamSubscription](), nil
//	}
//
//	s, err := billpoll.Poll(ctx, time.Second, probe, billpoll.Callbacks[[]billing.TeamSubscription]{
//	    OnSuccess: func(subs []billing.TeamSubscription) { show(subs) },
//	    OnWarning: func() { showTakingLonger() },
//	    OnStop:    func() { hideProgress() },
//	})
//
// # Algorithm
//
// A session waits the initial delay, calls the probe, and on "not yet done"
// multiplies the delay by the backoff factor before trying again. Probe
// errors and panics count as "not yet done". After each attempt the time
// since the session started is compared against:
//
//   - the deadline ([WithRetryUntil], default 120s): past it, OnStop fires
//     and the session ends
//   - the warning threshold ([WithWarningAfter], default 40s): past it,
//     OnWarning fires once
//
// Delays grow by [WithBackoffFactor] (default 1.2) and are capped by
// [WithMaxDelay] (default 1m). Each session runs on one goroutine; its
// callbacks never run concurrently with each other.
//
// # Cancellation
//
// The context passed to [Poll] is the cancellation token. Cancelling it,
// or calling [Session.Stop], ends the session with [OutcomeCancelled].
// A probe already running is allowed to finish.
//
// # Architecture
//
//   - billing: plan catalog, subscriptions and the reconciler built on [Poll]
//   - config: YAML configuration for the billpoll CLI
//   - internal/backend: HTTP JSON client for the billing backend
//   - internal/store: in-memory session status with pub/sub
//   - internal/server: status API, Server-Sent Events and metrics
//   - internal/metrics: Prometheus collectors fed by session events
//   - internal/clock: wall clock and virtual test clock
package billpoll
