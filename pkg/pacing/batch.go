package pacing

import (
	"context"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// ItemFailure records one skipped item.
type ItemFailure struct {
	ID    string
	Class errs.Class
	Err   error
}

// BatchReport summarizes a finished (or aborted) batch.
type BatchReport struct {
	Context         RequestContext
	Succeeded       int
	Failures        []ItemFailure
	Pauses          int
	ProgressSignals int
}

// Attempted is the number of items that were run.
func (r BatchReport) Attempted() int {
	return r.Succeeded + len(r.Failures)
}

// Batch applies the courtesy throttle to a long sequence of items: a
// progress signal every ProgressEvery successes, a pause every PauseEvery
// successes, and a short cooldown after each skipped item.
type Batch struct {
	p      *Policy
	rc     RequestContext
	total  int
	log    logger.Logger
	report BatchReport
}

// NewBatch starts a batch. total is used for progress reporting only; pass
// 0 when unknown.
func (p *Policy) NewBatch(rc RequestContext, total int) *Batch {
	return &Batch{
		p:      p,
		rc:     rc,
		total:  total,
		log:    p.log.WithFields(rc.fields()),
		report: BatchReport{Context: rc},
	}
}

// Do runs one item. Non-fatal item errors are recorded and swallowed after
// the item cooldown. A fatal error or a cancelled context is returned and
// the caller is expected to stop the batch.
func (b *Batch) Do(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		b.p.state.recordSuccess()
		return b.succeeded(ctx)
	}

	b.p.state.recordFailure()
	class := errs.ClassOf(err)
	if class == errs.ClassFatal {
		b.log.WithError(err).ErrorWithFields("fatal error, stopping batch", map[string]interface{}{
			"item": id,
		})
		return err
	}

	b.report.Failures = append(b.report.Failures, ItemFailure{ID: id, Class: class, Err: err})
	b.log.WithError(err).WarnWithFields("item failed, skipping", map[string]interface{}{
		"item":     id,
		"class":    string(class),
		"cooldown": b.p.cfg.ItemCooldown,
	})
	b.p.emit(Event{Type: EventItemFailed, Context: b.rc, Item: id, Err: err})
	b.p.emit(Event{Type: EventItemCooldown, Context: b.rc, Item: id, Delay: b.p.cfg.ItemCooldown})

	return b.p.sleep(ctx, b.p.cfg.ItemCooldown)
}

func (b *Batch) succeeded(ctx context.Context) error {
	b.report.Succeeded++
	n := b.report.Succeeded
	cfg := b.p.cfg

	if cfg.ProgressEvery > 0 && n%cfg.ProgressEvery == 0 {
		b.report.ProgressSignals++
		logger.LogBatchProgress(b.log, b.rc.Target, n, b.total)
		b.p.emit(Event{Type: EventProgress, Context: b.rc, Done: n, Total: b.total})
	}

	if cfg.PauseEvery > 0 && n%cfg.PauseEvery == 0 {
		b.report.Pauses++
		b.log.InfoWithFields("courtesy pause", map[string]interface{}{
			"done":     n,
			"duration": cfg.PauseDuration,
		})
		b.p.emit(Event{Type: EventPause, Context: b.rc, Done: n, Total: b.total, Delay: cfg.PauseDuration})
		return b.p.sleep(ctx, cfg.PauseDuration)
	}
	return nil
}

// Report returns the batch summary so far.
func (b *Batch) Report() BatchReport {
	r := b.report
	r.Failures = append([]ItemFailure(nil), b.report.Failures...)
	return r
}
