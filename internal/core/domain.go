package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  RecordType = "income"
	Expense RecordType = "expense"
)

const (
	Daily   PeriodType = "daily"
	Weekly  PeriodType = "weekly"
	Monthly PeriodType = "monthly"
)

type (
	RecordType string

	PeriodType string

	// Record is a single income or expense transaction.
	Record struct {
		ID       int64
		Amount   Money
		Type     RecordType
		Category string // "Parent" or "Parent/Sub"
		Date     time.Time
		Note     string
	}

	// RecordPatch carries the fields of a partial record update. Nil fields are left untouched.
	RecordPatch struct {
		Amount   *Money
		Type     *RecordType
		Category *string
		Date     *time.Time
		Note     *string
	}

	// Template describes a recurring income or expense.
	Template struct {
		ID         int64
		Name       string
		Amount     Money
		Type       RecordType
		Category   string
		PeriodType PeriodType
		PeriodDay  int // 1-31, monthly only; 0 when unset
		Note       string
		Enabled    bool
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	TemplatePatch struct {
		Name       *string
		Amount     *Money
		Type       *RecordType
		Category   *string
		PeriodType *PeriodType
		PeriodDay  *int
		Note       *string
		Enabled    *bool
	}

	// Link ties a template and a day to the record it produced.
	Link struct {
		ID            int64
		TemplateID    int64
		TransactionID int64
		TargetDate    time.Time // local midnight
		CreatedAt     time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid record type")
	ErrEmptyCategory    = errors.New("empty category")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyName        = errors.New("empty template name")
	ErrInvalidPeriod    = errors.New("invalid period type")
	ErrInvalidPeriodDay = errors.New("invalid period day")
)

func (t RecordType) Valid() bool {
	return t == Income || t == Expense
}

// Label returns the user-facing label of the record type.
func (t RecordType) Label() string {
	switch t {
	case Income:
		return "收入"
	case Expense:
		return "支出"
	default:
		return string(t)
	}
}

func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

func (p PeriodType) Valid() bool {
	return p == Daily || p == Weekly || p == Monthly
}

// IsEmpty reports whether the patch changes nothing.
func (p RecordPatch) IsEmpty() bool {
	return p.Amount == nil && p.Type == nil && p.Category == nil && p.Date == nil && p.Note == nil
}

func (p TemplatePatch) IsEmpty() bool {
	return p.Name == nil && p.Amount == nil && p.Type == nil && p.Category == nil &&
		p.PeriodType == nil && p.PeriodDay == nil && p.Note == nil && p.Enabled == nil
}

// Validate checks the caller-side rules for a new record. The store itself
// only enforces the type enum.
func (r Record) Validate() error {
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if r.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.PeriodType.Valid() {
		return ErrInvalidPeriod
	}
	if t.PeriodType == Monthly && (t.PeriodDay < 1 || t.PeriodDay > 31) {
		return ErrInvalidPeriodDay
	}
	return nil
}

// RecordNote is the note given to records materialized from the template.
func (t Template) RecordNote() string {
	if t.Note != "" {
		return t.Note
	}
	return t.Name + "（固定收支）"
}
