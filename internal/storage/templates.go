package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"qingbu/internal/core"
)

// AddTemplate stores a recurring template and returns its id.
func (s *Store) AddTemplate(ctx context.Context, t core.Template) (int64, error) {
	_, q, err := s.handle()
	if err != nil {
		return 0, err
	}
	id, err := q.InsertTemplate(ctx, InsertTemplateParams{
		Name:        t.Name,
		AmountCents: t.Amount.Cents,
		Type:        string(t.Type),
		Category:    t.Category,
		PeriodType:  string(t.PeriodType),
		PeriodDay:   nullDay(t.PeriodDay),
		Note:        nullString(t.Note),
		Enabled:     t.Enabled,
		CreatedAt:   s.now().UnixMilli(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert recurring template: %w", err)
	}

	slog.InfoContext(ctx, "Recurring template saved",
		"id", id,
		"name", t.Name,
		"period", t.PeriodType,
		"amount_cents", t.Amount.Cents)
	return id, nil
}

// UpdateTemplate applies the non-nil fields of patch and bumps updated_at.
// An empty patch is a no-op.
func (s *Store) UpdateTemplate(ctx context.Context, id int64, patch core.TemplatePatch) error {
	_, q, err := s.handle()
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}

	var set []assignment
	if patch.Name != nil {
		set = append(set, assignment{"name", *patch.Name})
	}
	if patch.Amount != nil {
		set = append(set, assignment{"amount_cents", patch.Amount.Cents})
	}
	if patch.Type != nil {
		set = append(set, assignment{"type", string(*patch.Type)})
	}
	if patch.Category != nil {
		set = append(set, assignment{"category", *patch.Category})
	}
	if patch.PeriodType != nil {
		set = append(set, assignment{"period_type", string(*patch.PeriodType)})
	}
	if patch.PeriodDay != nil {
		set = append(set, assignment{"period_day", nullDay(*patch.PeriodDay)})
	}
	if patch.Note != nil {
		set = append(set, assignment{"note", nullString(*patch.Note)})
	}
	if patch.Enabled != nil {
		set = append(set, assignment{"enabled", *patch.Enabled})
	}
	set = append(set, assignment{"updated_at", s.now().UnixMilli()})

	if err := q.updateByID(ctx, "recurring_templates", id, set); err != nil {
		return fmt.Errorf("update recurring template %d: %w", id, err)
	}
	return nil
}

// ToggleTemplate enables or disables a template.
func (s *Store) ToggleTemplate(ctx context.Context, id int64, enabled bool) error {
	return s.UpdateTemplate(ctx, id, core.TemplatePatch{Enabled: &enabled})
}

// DeleteTemplate removes the template and all of its links. Records it
// produced stay as ordinary records.
func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(q *Queries) error {
		if err := q.DeleteLinksByTemplate(ctx, id); err != nil {
			return fmt.Errorf("delete recurring links: %w", err)
		}
		if err := q.DeleteTemplate(ctx, id); err != nil {
			return fmt.Errorf("delete recurring template: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Recurring template deleted", "id", id)
	return nil
}

// GetTemplate returns the template with the given id, or nil when it does not exist.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*core.Template, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	row, err := q.GetTemplate(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring template: %w", err)
	}
	t := s.toTemplate(row)
	return &t, nil
}

// Templates lists templates, newest first, optionally restricted to one type.
func (s *Store) Templates(ctx context.Context, typ *core.RecordType) ([]core.Template, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	var rows []RecurringTemplate
	if typ != nil {
		rows, err = q.ListTemplatesByType(ctx, string(*typ))
	} else {
		rows, err = q.ListTemplates(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	return s.toTemplates(rows), nil
}

// EnabledTemplates lists the templates taking part in materialization.
func (s *Store) EnabledTemplates(ctx context.Context) ([]core.Template, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := q.ListEnabledTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled recurring templates: %w", err)
	}
	return s.toTemplates(rows), nil
}

// MaterializeRecord inserts r and links it to (templateID, day of target) in
// one transaction. A second materialization for the same pair fails with
// ErrAlreadyMaterialized and leaves no record behind.
func (s *Store) MaterializeRecord(ctx context.Context, r core.Record, templateID int64, target time.Time) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(q *Queries) error {
		var err error
		id, err = s.materialize(ctx, q, r, templateID, target)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReplaceMaterialized deletes record oldID with its links and materializes r
// for (templateID, target) in the same transaction. On failure the old record
// is kept.
func (s *Store) ReplaceMaterialized(ctx context.Context, oldID int64, r core.Record, templateID int64, target time.Time) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(q *Queries) error {
		if err := q.DeleteLinksByTransaction(ctx, oldID); err != nil {
			return fmt.Errorf("delete recurring links: %w", err)
		}
		if err := q.DeleteTransaction(ctx, oldID); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		var err error
		id, err = s.materialize(ctx, q, r, templateID, target)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) materialize(ctx context.Context, q *Queries, r core.Record, templateID int64, target time.Time) (int64, error) {
	day := core.TruncateDay(target, s.loc)
	id, err := q.InsertTransaction(ctx, insertParams(r))
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	_, err = q.InsertLink(ctx, InsertLinkParams{
		TemplateID:    templateID,
		TransactionID: id,
		TargetDate:    day.UnixMilli(),
		CreatedAt:     s.now().UnixMilli(),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("template %d on %s: %w", templateID, day.Format("2006-01-02"), ErrAlreadyMaterialized)
		}
		return 0, fmt.Errorf("insert recurring link: %w", err)
	}
	return id, nil
}

// LinkForDate returns the link of templateID for the day of date, or nil.
func (s *Store) LinkForDate(ctx context.Context, templateID int64, date time.Time) (*core.Link, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	row, err := q.GetLinkForDate(ctx, templateID, core.TruncateDay(date, s.loc).UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring link: %w", err)
	}
	l := s.toLink(row)
	return &l, nil
}

// HasLinkForDate reports whether templateID already produced a record on the day of date.
func (s *Store) HasLinkForDate(ctx context.Context, templateID int64, date time.Time) (bool, error) {
	l, err := s.LinkForDate(ctx, templateID, date)
	if err != nil {
		return false, err
	}
	return l != nil, nil
}

// LinksByTemplate lists a template's links, latest target date first.
func (s *Store) LinksByTemplate(ctx context.Context, templateID int64) ([]core.Link, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := q.ListLinksByTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list recurring links: %w", err)
	}
	links := make([]core.Link, len(rows))
	for i, r := range rows {
		links[i] = s.toLink(r)
	}
	return links, nil
}

func (s *Store) toTemplate(r RecurringTemplate) core.Template {
	return core.Template{
		ID:         r.ID,
		Name:       r.Name,
		Amount:     core.FromCents(r.AmountCents),
		Type:       core.RecordType(r.Type),
		Category:   r.Category,
		PeriodType: core.PeriodType(r.PeriodType),
		PeriodDay:  int(r.PeriodDay.Int64),
		Note:       r.Note.String,
		Enabled:    r.Enabled,
		CreatedAt:  core.FromMillis(r.CreatedAt, s.loc),
		UpdatedAt:  core.FromMillis(r.UpdatedAt, s.loc),
	}
}

func (s *Store) toTemplates(rows []RecurringTemplate) []core.Template {
	out := make([]core.Template, len(rows))
	for i, r := range rows {
		out[i] = s.toTemplate(r)
	}
	return out
}

func (s *Store) toLink(r RecurringLink) core.Link {
	return core.Link{
		ID:            r.ID,
		TemplateID:    r.TemplateID,
		TransactionID: r.TransactionID,
		TargetDate:    core.FromMillis(r.TargetDate, s.loc),
		CreatedAt:     core.FromMillis(r.CreatedAt, s.loc),
	}
}

func nullDay(d int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(d), Valid: d > 0}
}
