package retry

import (
	"context"
	"fmt"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// Outcome is the result of a bounded retry sequence.
type Outcome int

const (
	// Succeeded means some attempt returned nil.
	Succeeded Outcome = iota
	// RetriedExhausted means every allowed attempt failed with a retryable error.
	RetriedExhausted
	// AbortedFatal means a fatal error (or cancellation) ended the sequence early.
	AbortedFatal
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case RetriedExhausted:
		return "retried_exhausted"
	case AbortedFatal:
		return "aborted_fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Operation is a remote call that might need retrying
type Operation func(ctx context.Context) error

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff yields the cooldown before attempt n+1 after attempt n failed
	Backoff BackoffStrategy
	// Classify decides whether a failure is fatal; defaults to errors.ClassOf
	Classify func(error) errs.Class
	// OnFailure is called for every failed attempt, before classification
	OnFailure func(attempt int, err error)
	// OnRetry is called before each cooldown
	OnRetry func(attempt int, err error, delay time.Duration)
	// OnSuccess is called once when an attempt succeeds
	OnSuccess func(attempt int)
	// Sleep waits out the cooldown; defaults to Wait
	Sleep  SleepFunc
	Logger logger.Logger
	// Kind and Target name the request in log output
	Kind   string
	Target string
}

// DefaultConfig returns three attempts with a flat one minute cooldown.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Minute},
		Classify:    errs.ClassOf,
		Sleep:       Wait,
		Logger:      logger.GetLogger(),
	}
}

// Do runs op until it succeeds, fails fatally or runs out of attempts.
// A cooldown is slept between attempts only, so N attempts sleep N-1 times.
func Do(ctx context.Context, op Operation, cfg *Config) (Outcome, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	classify := cfg.Classify
	if classify == nil {
		classify = errs.ClassOf
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	base := log
	if cfg.Kind != "" || cfg.Target != "" {
		log = log.WithFields(map[string]interface{}{"kind": cfg.Kind, "target": cfg.Target})
	}
	if cfg.Backoff != nil {
		cfg.Backoff.Reset()
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if cfg.OnSuccess != nil {
				cfg.OnSuccess(attempt)
			}
			if attempt > 1 {
				log.InfoWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return Succeeded, nil
		}

		if cfg.OnFailure != nil {
			cfg.OnFailure(attempt, err)
		}

		if classify(err) == errs.ClassFatal {
			log.WithError(err).ErrorWithFields("fatal error, not retrying", map[string]interface{}{
				"attempt": attempt,
			})
			return AbortedFatal, err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.WithError(err).ErrorWithFields("retry attempts exhausted", map[string]interface{}{
				"attempts": attempt,
			})
			return RetriedExhausted, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		logger.LogRetry(base, cfg.Kind, cfg.Target, attempt, cfg.MaxAttempts, delay, err)

		if serr := sleep(ctx, delay); serr != nil {
			log.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  serr.Error(),
			})
			return AbortedFatal, fmt.Errorf("retry cancelled: %w", serr)
		}
	}
}
