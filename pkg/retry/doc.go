// Package retry runs a remote operation until it succeeds, fails fatally or
// exhausts its attempt budget.
//
// Failures are classified with errors.ClassOf: fatal errors (checkpoint,
// auth, cancellation) end the sequence immediately with AbortedFatal;
// anything else is retried after the configured backoff. A sequence of N
// attempts sleeps at most N-1 times.
//
//	outcome, err := retry.Do(ctx, func(ctx context.Context) error {
//		return client.Ping(ctx)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: time.Minute},
//	})
//
// Most callers go through pacing.Policy.ExecuteWithRetry, which wires the
// cooldown and the failure counter to the account's pacing state.
package retry
