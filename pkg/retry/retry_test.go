package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testConfig(max int, rec *sleepRecorder) *Config {
	return &Config{
		MaxAttempts: max,
		Backoff:     &ConstantBackoff{Delay: time.Minute},
		Sleep:       rec.sleep,
		Logger:      logger.NewNopLogger(),
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	rec := &sleepRecorder{}
	attempts := 0
	successAt := 0
	cfg := testConfig(3, rec)
	cfg.OnSuccess = func(attempt int) { successAt = attempt }

	outcome, err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, cfg)

	if err != nil || outcome != Succeeded {
		t.Fatalf("Expected success, got %v / %v", outcome, err)
	}
	if attempts != 3 || successAt != 3 {
		t.Errorf("Expected success on attempt 3, got attempts=%d successAt=%d", attempts, successAt)
	}
	if len(rec.delays) != 2 {
		t.Errorf("Expected 2 cooldowns, got %d", len(rec.delays))
	}
}

func TestDoExhausted(t *testing.T) {
	rec := &sleepRecorder{}
	attempts := 0
	persistent := errs.New(errs.ErrorTypeServerError, 503, "unavailable")

	outcome, err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return persistent
	}, testConfig(3, rec))

	if outcome != RetriedExhausted {
		t.Fatalf("Expected RetriedExhausted, got %v", outcome)
	}
	if !errors.Is(err, persistent) {
		t.Errorf("Expected wrapped last error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Minute || rec.delays[1] != time.Minute {
		t.Errorf("Expected two 1m cooldowns, got %v", rec.delays)
	}
}

func TestDoFatalStopsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	attempts := 0
	failures := 0
	checkpoint := errs.New(errs.ErrorTypeCheckpoint, 400, "checkpoint_required")
	cfg := testConfig(5, rec)
	cfg.OnFailure = func(int, error) { failures++ }

	outcome, err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return checkpoint
	}, cfg)

	if outcome != AbortedFatal || err != checkpoint {
		t.Fatalf("Expected AbortedFatal with checkpoint error, got %v / %v", outcome, err)
	}
	if attempts != 1 || failures != 1 {
		t.Errorf("Expected a single attempt, got attempts=%d failures=%d", attempts, failures)
	}
	if len(rec.delays) != 0 {
		t.Errorf("Expected no cooldown, got %v", rec.delays)
	}
}

func TestDoCustomClassifier(t *testing.T) {
	attempts := 0
	cfg := testConfig(3, &sleepRecorder{})
	cfg.Classify = func(error) errs.Class { return errs.ClassFatal }

	outcome, _ := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("anything")
	}, cfg)

	if outcome != AbortedFatal || attempts != 1 {
		t.Errorf("Expected classifier to abort after one attempt, got %v after %d", outcome, attempts)
	}
}

func TestDoCancelledDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
		Logger:      logger.NewNopLogger(),
	}

	outcome, err := Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("network down")
	}, cfg)

	if outcome != AbortedFatal {
		t.Fatalf("Expected AbortedFatal, got %v", outcome)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestDoOnRetryReceivesBackoff(t *testing.T) {
	var seen []time.Duration
	cfg := testConfig(4, &sleepRecorder{})
	cfg.Backoff = BackoffFunc(func(attempt int) time.Duration { return time.Duration(attempt) * time.Second })
	cfg.OnRetry = func(attempt int, err error, d time.Duration) { seen = append(seen, d) }

	Do(context.Background(), func(ctx context.Context) error { return errors.New("x") }, cfg)

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(seen) != len(want) {
		t.Fatalf("Expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Delay %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}

func TestDoLogsEachRetry(t *testing.T) {
	tl := logger.NewTestLogger()
	cfg := testConfig(3, &sleepRecorder{})
	cfg.Logger = tl
	cfg.Kind = "profile"
	cfg.Target = "natgeo"
	attempts := 0

	outcome, _ := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("timeout")
		}
		return nil
	}, cfg)

	if outcome != Succeeded {
		t.Fatalf("Expected Succeeded, got %v", outcome)
	}
	warn := tl.GetMessagesByLevel("WARN")
	if len(warn) != 2 {
		t.Fatalf("Expected 2 retry warnings, got %d", len(warn))
	}
	for i, m := range warn {
		if m.Fields["kind"] != "profile" || m.Fields["target"] != "natgeo" {
			t.Errorf("Warning %d: missing request fields %v", i, m.Fields)
		}
		if m.Fields["attempt"] != i+1 || m.Fields["cooldown"] != time.Minute {
			t.Errorf("Warning %d: unexpected fields %v", i, m.Fields)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if Succeeded.String() != "succeeded" || RetriedExhausted.String() != "retried_exhausted" || AbortedFatal.String() != "aborted_fatal" {
		t.Error("Unexpected outcome names")
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  time.Minute,
		MaxDelay:   5 * time.Minute,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 5 * time.Minute},
		{10, 5 * time.Minute},
	}

	for _, tt := range tests {
		if got := backoff.NextDelay(tt.attempt); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestAdaptiveBackoffStaysWithinCap(t *testing.T) {
	backoff := NewAdaptiveBackoff(time.Minute, 3*time.Minute)
	for attempt := 1; attempt < 20; attempt++ {
		d := backoff.NextDelay(attempt)
		if d < 54*time.Second || d > 3*time.Minute {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Zero wait should return nil, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancellation, got %v", err)
	}
}
