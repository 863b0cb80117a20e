// Package pacing decides how long to wait before each remote request and
// whether a failed request is retried, skipped or treated as fatal.
//
// A Policy owns the State of one account. Before every request the caller
// invokes WaitBefore, which sleeps a random delay drawn from the range
// configured for the request kind while keeping consecutive requests of the
// same kind at least Floor apart.
//
// ExecuteWithRetry wraps a single logical operation: a checkpoint or a
// cancelled context stops it immediately; other failures, a rejected login
// included, wait a fixed cooldown (or an exponential one in adaptive mode)
// before the next attempt.
//
// Long sequences such as the posts of a profile go through a Batch, which
// logs progress every ProgressEvery successes, pauses every PauseEvery
// successes, and skips failing items after a short cooldown.
package pacing
