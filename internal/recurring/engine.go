package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qingbu/internal/core"
	"qingbu/internal/log"
	"qingbu/internal/storage"
)

// ErrTemplateDisabled is returned by QuickAdd for a disabled template.
var ErrTemplateDisabled = errors.New("recurring template is disabled")

// Store is the persistence the engine needs. *storage.Store implements it.
type Store interface {
	EnabledTemplates(ctx context.Context) ([]core.Template, error)
	MaterializeRecord(ctx context.Context, r core.Record, templateID int64, target time.Time) (int64, error)
	LinkForDate(ctx context.Context, templateID int64, date time.Time) (*core.Link, error)
	ReplaceMaterialized(ctx context.Context, oldID int64, r core.Record, templateID int64, target time.Time) (int64, error)
	AddRecord(ctx context.Context, r core.Record) (int64, error)
}

// Decision is what to do with a due day that already has a record.
type Decision int

const (
	// Skip leaves the existing record alone.
	Skip Decision = iota
	// Create adds another record. It is not linked, the day stays bound
	// to the first one.
	Create
	// Replace swaps the existing record for a freshly materialized one.
	Replace
)

func (d Decision) String() string {
	switch d {
	case Create:
		return "create"
	case Replace:
		return "replace"
	default:
		return "skip"
	}
}

// ParseDecision accepts skip, create and replace (case-insensitive).
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "":
		return Skip, nil
	case "create":
		return Create, nil
	case "replace":
		return Replace, nil
	}
	return Skip, fmt.Errorf("unknown duplicate policy %q", s)
}

// Pending is one (template, day) a sweep wants to materialize.
type Pending struct {
	Template   core.Template
	TargetDate time.Time
	// ExistingRecordID is the record already linked to the day, 0 if none.
	ExistingRecordID int64
}

func (p Pending) Duplicate() bool {
	return p.ExistingRecordID != 0
}

// SweepResult counts the outcome of a sweep.
type SweepResult struct {
	Created int
	Skipped int
	Errors  int
}

type EngineOption func(*Engine)

// WithLookahead sets how many days past today a sweep covers.
func WithLookahead(days int) EngineOption {
	return func(e *Engine) {
		if days >= 0 {
			e.lookahead = days
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine materializes recurring templates into records.
type Engine struct {
	store     Store
	loc       *time.Location
	lookahead int
	logger    *log.Logger
}

func NewEngine(store Store, loc *time.Location, opts ...EngineOption) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{
		store:     store,
		loc:       loc,
		lookahead: DefaultLookahead,
		logger:    log.FromContext(context.Background(), log.ComponentRecurring),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Lookahead() int {
	return e.lookahead
}

// RecordFor builds the record t produces on date.
func RecordFor(t core.Template, date time.Time) core.Record {
	return core.Record{
		Amount:   t.Amount,
		Type:     t.Type,
		Category: t.Category,
		Date:     date,
		Note:     t.RecordNote(),
	}
}

// Materialize creates t's record dated target and links it to target's day.
// A day that already has a record fails with storage.ErrAlreadyMaterialized.
func (e *Engine) Materialize(ctx context.Context, t core.Template, target time.Time) (int64, error) {
	id, err := e.store.MaterializeRecord(ctx, RecordFor(t, target), t.ID, target)
	if err != nil {
		return 0, fmt.Errorf("materialize template %d: %w", t.ID, err)
	}
	e.logger.DebugContext(ctx, "Recurring record created",
		log.NewFields().
			WithOperation(log.OpMaterialize).
			WithTemplate(t.ID, target.In(e.loc).Format(time.DateOnly)).
			WithRecord(id, string(t.Type), t.Amount.Cents, t.Category).
			ToSlice()...)
	return id, nil
}

// HasRecordForDate reports whether templateID already produced a record on date's day.
func (e *Engine) HasRecordForDate(ctx context.Context, templateID int64, date time.Time) (bool, error) {
	link, err := e.store.LinkForDate(ctx, templateID, date)
	if err != nil {
		return false, err
	}
	return link != nil, nil
}

// FindPending lists every due day of every enabled template within the
// lookahead window starting at now's day, noting days that already have a record.
func (e *Engine) FindPending(ctx context.Context, now time.Time) ([]Pending, error) {
	templates, err := e.store.EnabledTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enabled templates: %w", err)
	}

	base := core.TruncateDay(now, e.loc)
	var pending []Pending
	for _, t := range templates {
		dates, err := TargetDates(t, base, e.lookahead)
		if err != nil {
			e.logger.WarnContext(ctx, "Skipping template with unknown cadence",
				log.FieldTemplateID, t.ID, log.FieldError, err)
			continue
		}
		for _, d := range dates {
			link, err := e.store.LinkForDate(ctx, t.ID, d)
			if err != nil {
				return nil, fmt.Errorf("check template %d on %s: %w", t.ID, d.Format(time.DateOnly), err)
			}
			p := Pending{Template: t, TargetDate: d}
			if link != nil {
				p.ExistingRecordID = link.TransactionID
			}
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// Resolve materializes pending days at 12:00 local. decide is consulted for
// days that already have a record; a nil decide skips them.
func (e *Engine) Resolve(ctx context.Context, pending []Pending, decide func(Pending) Decision) SweepResult {
	var res SweepResult
	for _, p := range pending {
		at := core.AtNoon(p.TargetDate, e.loc)

		if !p.Duplicate() {
			e.create(ctx, p, at, &res)
			continue
		}

		decision := Skip
		if decide != nil {
			decision = decide(p)
		}
		switch decision {
		case Create:
			if _, err := e.store.AddRecord(ctx, RecordFor(p.Template, at)); err != nil {
				e.fail(ctx, p, err, &res)
				continue
			}
			res.Created++
		case Replace:
			// old and new record swap in one transaction
			_, err := e.store.ReplaceMaterialized(ctx, p.ExistingRecordID, RecordFor(p.Template, at), p.Template.ID, at)
			e.tally(ctx, p, err, &res)
		default:
			res.Skipped++
		}
	}
	return res
}

func (e *Engine) create(ctx context.Context, p Pending, at time.Time, res *SweepResult) {
	_, err := e.Materialize(ctx, p.Template, at)
	e.tally(ctx, p, err, res)
}

func (e *Engine) tally(ctx context.Context, p Pending, err error, res *SweepResult) {
	switch {
	case err == nil:
		res.Created++
	case errors.Is(err, storage.ErrAlreadyMaterialized):
		// lost a race with another sweep
		res.Skipped++
	default:
		e.fail(ctx, p, err, res)
	}
}

func (e *Engine) fail(ctx context.Context, p Pending, err error, res *SweepResult) {
	res.Errors++
	e.logger.ErrorContext(ctx, "Failed to materialize recurring record",
		log.NewFields().
			WithOperation(log.OpMaterialize).
			WithTemplate(p.Template.ID, p.TargetDate.Format(time.DateOnly)).
			WithError(err).
			ToSlice()...)
}

// Sweep finds and resolves pending days, applying policy to every duplicate.
func (e *Engine) Sweep(ctx context.Context, now time.Time, policy Decision) (SweepResult, error) {
	start := time.Now()
	pending, err := e.FindPending(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}
	res := e.Resolve(ctx, pending, func(Pending) Decision { return policy })

	e.logger.InfoContext(ctx, "Recurring sweep completed",
		log.FieldOperation, log.OpSweep,
		log.FieldPolicy, policy.String(),
		"pending", len(pending),
		"created", res.Created,
		"skipped", res.Skipped,
		"errors", res.Errors,
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

// QuickAdd materializes t now, on the date QuickAddDate picks.
func (e *Engine) QuickAdd(ctx context.Context, t core.Template, now time.Time) (int64, error) {
	if !t.Enabled {
		return 0, fmt.Errorf("quick add %q: %w", t.Name, ErrTemplateDisabled)
	}
	return e.Materialize(ctx, t, QuickAddDate(t, now, e.loc))
}
