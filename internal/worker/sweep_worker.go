// Package worker runs recurring sweeps on behalf of the background process,
// triggered by a ticker or by sweep requests from the broker.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qingbu/internal/amqp"
	"qingbu/internal/core"
	"qingbu/internal/export"
	"qingbu/internal/log"
	"qingbu/internal/recurring"
)

// Sweeper is the part of the recurring engine the worker drives.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time, policy recurring.Decision) (recurring.SweepResult, error)
}

type Option func(*SweepWorker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *SweepWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithSheetsSync pushes the current year's records to p after every sweep
// that created records.
func WithSheetsSync(e *export.Exporter, p export.Pusher, loc *time.Location) Option {
	return func(w *SweepWorker) {
		w.exporter = e
		w.pusher = p
		w.loc = loc
	}
}

func WithLogger(l *log.Logger) Option {
	return func(w *SweepWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// SweepWorker materializes due recurring records at most once per local day
// unless a request forces it. Sweeps from the ticker and from the broker never
// overlap.
type SweepWorker struct {
	mu sync.Mutex

	engine        Sweeper
	gate          *recurring.Gate
	defaultPolicy recurring.Decision
	now           func() time.Time
	logger        *log.Logger

	exporter *export.Exporter
	pusher   export.Pusher
	loc      *time.Location
}

func NewSweepWorker(engine Sweeper, gate *recurring.Gate, defaultPolicy recurring.Decision, opts ...Option) *SweepWorker {
	w := &SweepWorker{
		engine:        engine,
		gate:          gate,
		defaultPolicy: defaultPolicy,
		now:           time.Now,
		logger:        log.FromContext(context.Background(), log.ComponentWorker),
		loc:           time.Local,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.loc == nil {
		w.loc = time.Local
	}
	return w
}

// HandleSweepRequest processes a sweep request from AMQP. A request without
// a policy uses the worker's default.
func (w *SweepWorker) HandleSweepRequest(ctx context.Context, msg *amqp.SweepRequest) error {
	policy := w.defaultPolicy
	if msg.Policy != "" {
		p, err := recurring.ParseDecision(msg.Policy)
		if err != nil {
			// redelivery cannot fix a bad policy
			w.logger.WarnContext(ctx, "Ignoring sweep request with invalid policy",
				log.FieldMessageID, msg.ID, log.FieldPolicy, msg.Policy, log.FieldError, err)
			return nil
		}
		policy = p
	}

	w.logger.InfoContext(ctx, "Processing sweep request",
		log.FieldMessageID, msg.ID,
		log.FieldPolicy, policy.String(),
		"force", msg.Force)

	_, err := w.run(ctx, w.now(), policy, msg.Force)
	return err
}

// RunOnce sweeps with the default policy if today has not been checked yet.
// It reports whether a sweep ran.
func (w *SweepWorker) RunOnce(ctx context.Context) (bool, error) {
	return w.run(ctx, w.now(), w.defaultPolicy, false)
}

func (w *SweepWorker) run(ctx context.Context, now time.Time, policy recurring.Decision, force bool) (bool, error) {
	// gate check and mark must not interleave with another sweep
	w.mu.Lock()
	defer w.mu.Unlock()

	if !force && !w.gate.ShouldCheck(now) {
		w.logger.DebugContext(ctx, "Recurring records already checked today")
		return false, nil
	}

	res, err := w.engine.Sweep(ctx, now, policy)
	if err != nil {
		return false, fmt.Errorf("sweep: %w", err)
	}
	w.gate.MarkChecked(now)

	if res.Created > 0 {
		w.syncSheets(ctx, now)
	}
	return true, nil
}

func (w *SweepWorker) syncSheets(ctx context.Context, now time.Time) {
	if w.exporter == nil || w.pusher == nil {
		return
	}
	r := core.YearRange(now.In(w.loc).Year(), w.loc)
	ref, err := w.exporter.Push(ctx, w.pusher, &r)
	if err != nil {
		// the records are stored; the next sweep pushes again
		w.logger.ErrorContext(ctx, "Failed to push export to Google Sheets", log.FieldError, err)
		return
	}
	w.logger.InfoContext(ctx, "Pushed export to Google Sheets", "range", ref)
}
