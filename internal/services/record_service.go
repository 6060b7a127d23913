package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"qingbu/internal/amqp"
	"qingbu/internal/category"
	"qingbu/internal/core"
)

// RecordStore is the persistence RecordService writes through.
// *storage.Store implements it.
type RecordStore interface {
	AddRecord(ctx context.Context, r core.Record) (int64, error)
	UpdateRecord(ctx context.Context, id int64, patch core.RecordPatch) error
	DeleteRecord(ctx context.Context, id int64) error
	GetRecord(ctx context.Context, id int64) (*core.Record, error)
	Close() error
}

// EventPublisher announces record changes. *amqp.Client implements it.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, msg *amqp.RecordEvent) error
	Close() error
}

// ErrRecordNotFound is returned by Update and Delete for an unknown id.
var ErrRecordNotFound = errors.New("record not found")

// RecordService validates record writes, saves them and publishes a change
// event. The store is the source of truth; a failed publish never fails the
// write.
type RecordService struct {
	store  RecordStore
	events EventPublisher
}

// NewRecordService wires a store and an optional publisher. A nil publisher
// disables events.
func NewRecordService(store RecordStore, events EventPublisher) *RecordService {
	return &RecordService{store: store, events: events}
}

// Add validates r, stores it and returns its id.
func (s *RecordService) Add(ctx context.Context, r core.Record) (int64, error) {
	r.Category = strings.TrimSpace(r.Category)
	if err := r.Validate(); err != nil {
		return 0, fmt.Errorf("invalid record: %w", err)
	}
	if err := checkCategory(r.Category, r.Type); err != nil {
		return 0, fmt.Errorf("invalid record: %w", err)
	}

	id, err := s.store.AddRecord(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("save record: %w", err)
	}

	s.publish(ctx, amqp.RecordCreated, id)
	return id, nil
}

// Update applies patch to record id. An empty patch changes nothing and
// publishes nothing.
func (s *RecordService) Update(ctx context.Context, id int64, patch core.RecordPatch) error {
	if patch.IsEmpty() {
		// still surfaces ErrNotInitialized
		return s.store.UpdateRecord(ctx, id, patch)
	}
	cur, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if patch.Category != nil {
		trimmed := strings.TrimSpace(*patch.Category)
		patch.Category = &trimmed
	}
	if err := validatePatch(*cur, patch); err != nil {
		return fmt.Errorf("invalid patch: %w", err)
	}
	if err := s.store.UpdateRecord(ctx, id, patch); err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}

	s.publish(ctx, amqp.RecordUpdated, id)
	return nil
}

// Delete removes record id together with any recurring link to it.
func (s *RecordService) Delete(ctx context.Context, id int64) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}

	s.publish(ctx, amqp.RecordDeleted, id)
	return nil
}

func (s *RecordService) get(ctx context.Context, id int64) (*core.Record, error) {
	r, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	if r == nil {
		return nil, fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
	}
	return r, nil
}

// checkCategory requires the parent of cat to be one of the built-in
// parents for t.
func checkCategory(cat string, t core.RecordType) error {
	if parent := category.ParentOf(cat); !category.IsKnownParent(parent, t) {
		return fmt.Errorf("%w: %q is not a %s category", core.ErrUnknownCategory, parent, t.Label())
	}
	return nil
}

// validatePatch checks the patched fields. A type or category change is
// checked against the record as it will be after the update.
func validatePatch(cur core.Record, p core.RecordPatch) error {
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return err
		}
	}
	if p.Type != nil && !p.Type.Valid() {
		return core.ErrInvalidType
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return core.ErrEmptyCategory
	}
	if p.Date != nil && p.Date.IsZero() {
		return core.ErrInvalidDate
	}
	if p.Type != nil || p.Category != nil {
		if p.Type != nil {
			cur.Type = *p.Type
		}
		if p.Category != nil {
			cur.Category = *p.Category
		}
		return checkCategory(cur.Category, cur.Type)
	}
	return nil
}

func (s *RecordService) publish(ctx context.Context, op amqp.RecordOp, id int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRecordEvent(ctx, amqp.NewRecordEvent(op, id)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish record event",
			"record_id", id, "op", op, "error", err)
		// Don't fail the request - the record is saved locally
	}
}

// Close closes both the store and the publisher.
func (s *RecordService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close record service: %w", errors.Join(errs...))
	}
	return nil
}
