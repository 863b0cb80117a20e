package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/retry"
)

// Outcome re-exports retry.Outcome so callers of the policy need one import.
type Outcome = retry.Outcome

const (
	Succeeded        = retry.Succeeded
	RetriedExhausted = retry.RetriedExhausted
	AbortedFatal     = retry.AbortedFatal
)

// Clock returns the current time.
type Clock func() time.Time

// EventType names what a policy Event reports.
type EventType string

const (
	EventPace         EventType = "pace"
	EventCooldown     EventType = "cooldown"
	EventProgress     EventType = "progress"
	EventPause        EventType = "pause"
	EventItemFailed   EventType = "item_failed"
	EventItemCooldown EventType = "item_cooldown"
)

// Event is emitted to the observer before every wait and on batch progress.
type Event struct {
	Type    EventType
	Context RequestContext
	Delay   time.Duration
	Attempt int
	Done    int
	Total   int
	Item    string
	Err     error
}

// Observer receives policy events. It is called synchronously and must not block.
type Observer func(Event)

// Policy paces and retries remote calls for one account. It owns its State,
// so separate accounts get separate clocks. All waits go through the
// injected sleeper and clock.
type Policy struct {
	cfg      Config
	state    *State
	clock    Clock
	sleep    retry.SleepFunc
	rng      *rand.Rand
	log      logger.Logger
	observer Observer

	// mu serializes WaitBefore so the floor holds with concurrent callers.
	mu sync.Mutex
}

// Option configures a Policy.
type Option func(*Policy)

func WithClock(c Clock) Option { return func(p *Policy) { p.clock = c } }

func WithSleeper(s retry.SleepFunc) Option { return func(p *Policy) { p.sleep = s } }

// WithRand sets the source for delay draws.
func WithRand(src rand.Source) Option { return func(p *Policy) { p.rng = rand.New(src) } }

func WithLogger(l logger.Logger) Option { return func(p *Policy) { p.log = l } }

func WithObserver(o Observer) Option { return func(p *Policy) { p.observer = o } }

// New creates a Policy with a fresh State.
func New(cfg Config, opts ...Option) *Policy {
	p := &Policy{
		cfg:   cfg,
		state: NewState(),
		clock: time.Now,
		sleep: retry.Wait,
		log:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(p.clock().UnixNano()))
	}
	return p
}

func (p *Policy) State() *State  { return p.state }
func (p *Policy) Config() Config { return p.cfg }

// SetObserver replaces the observer. Call it before the policy is in use.
func (p *Policy) SetObserver(o Observer) { p.observer = o }

func (p *Policy) emit(ev Event) {
	if p.observer != nil {
		p.observer(ev)
	}
}

func (p *Policy) draw(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(p.rng.Int63n(int64(r.Max-r.Min)+1))
}

// WaitBefore blocks before a request of rc's kind. It draws a delay from the
// kind's range and returns it; the actual sleep is stretched when needed so
// that consecutive requests of the same kind stay at least Floor apart.
// State advances only once the wait has elapsed.
func (p *Policy) WaitBefore(ctx context.Context, rc RequestContext) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delay := p.draw(p.cfg.RangeFor(rc.Kind))
	wait := delay
	if last, ok := p.state.LastRequest(rc.Kind); ok && p.cfg.Floor > 0 {
		if need := p.cfg.Floor - p.clock().Sub(last); need > wait {
			wait = need
		}
	}

	p.emit(Event{Type: EventPace, Context: rc, Delay: wait})
	logger.LogPacing(p.log, string(rc.Kind), rc.Target, wait)

	if err := p.sleep(ctx, wait); err != nil {
		return 0, err
	}
	p.state.recordRequest(rc.Kind, p.clock())
	return delay, nil
}

// ExecuteWithRetry runs op up to maxAttempts times (0 means until it
// succeeds or fails fatally). A checkpoint or a cancelled context ends the
// sequence at once; a rejected login is retried like any other failure and
// is left to the caller to treat as fatal afterwards. Other failures wait
// the cooldown before the next attempt, so N attempts sleep N-1 times.
// Success resets the failure counter.
func (p *Policy) ExecuteWithRetry(ctx context.Context, rc RequestContext, op retry.Operation, maxAttempts int) (Outcome, error) {
	log := p.log.WithFields(rc.fields())

	cfg := &retry.Config{
		MaxAttempts: maxAttempts,
		Backoff:     p.cooldown(),
		Classify:    errs.RetryClassOf,
		Sleep:       p.sleep,
		Logger:      p.log,
		Kind:        string(rc.Kind),
		Target:      rc.Target,
		OnFailure: func(attempt int, err error) {
			p.state.recordFailure()
		},
		OnSuccess: func(attempt int) {
			p.state.recordSuccess()
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			p.emit(Event{Type: EventCooldown, Context: rc, Delay: delay, Attempt: attempt, Err: err})
		},
	}

	outcome, err := retry.Do(ctx, op, cfg)
	if outcome != Succeeded {
		log.WithError(err).WarnWithFields("operation did not succeed", map[string]interface{}{
			"outcome": outcome.String(),
		})
	}
	return outcome, err
}

// cooldown is flat unless adaptive pacing is on, in which case it grows with
// the account's consecutive failures, not just the attempts of one call.
func (p *Policy) cooldown() retry.BackoffStrategy {
	if !p.cfg.Adaptive {
		return &retry.ConstantBackoff{Delay: p.cfg.Cooldown}
	}
	exp := retry.NewAdaptiveBackoff(p.cfg.Cooldown, p.cfg.MaxCooldown)
	return retry.BackoffFunc(func(int) time.Duration {
		return exp.NextDelay(p.state.ConsecutiveFailures())
	})
}
