package recurring_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"qingbu/internal/core"
	"qingbu/internal/recurring"
	"qingbu/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*3600)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s := storage.New(filepath.Join(t.TempDir(), "qingbu.db"), storage.WithLocation(cst))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addTemplate(t *testing.T, s *storage.Store, tpl core.Template) core.Template {
	t.Helper()
	id, err := s.AddTemplate(context.Background(), tpl)
	require.NoError(t, err)
	got, err := s.GetTemplate(context.Background(), id)
	require.NoError(t, err)
	return *got
}

func rent(day int) core.Template {
	return core.Template{
		Name:       "房租",
		Amount:     core.FromCents(250000),
		Type:       core.Expense,
		Category:   "住房/房租",
		PeriodType: core.Monthly,
		PeriodDay:  day,
		Enabled:    true,
	}
}

func coffee() core.Template {
	return core.Template{
		Name:       "咖啡",
		Amount:     core.FromCents(1800),
		Type:       core.Expense,
		Category:   "餐饮/饮品",
		PeriodType: core.Daily,
		Note:       "美式",
		Enabled:    true,
	}
}

func TestEngine_MaterializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tpl := addTemplate(t, s, rent(5))
	e := recurring.NewEngine(s, cst)

	target := time.Date(2024, 3, 5, 12, 0, 0, 0, cst)
	id, err := e.Materialize(ctx, tpl, target)
	require.NoError(t, err)

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "房租（固定收支）", rec.Note)
	assert.Equal(t, tpl.Amount, rec.Amount)
	assert.Equal(t, "住房/房租", rec.Category)

	has, err := e.HasRecordForDate(ctx, tpl.ID, time.Date(2024, 3, 5, 0, 0, 0, 0, cst))
	require.NoError(t, err)
	assert.True(t, has)

	_, err = e.Materialize(ctx, tpl, target.Add(3*time.Hour))
	assert.ErrorIs(t, err, storage.ErrAlreadyMaterialized)

	all, err := s.AllRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEngine_SweepClampsMonthEnd(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	addTemplate(t, s, rent(31))
	e := recurring.NewEngine(s, cst)

	res, err := e.Sweep(ctx, time.Date(2024, 4, 28, 9, 0, 0, 0, cst), recurring.Skip)
	require.NoError(t, err)
	assert.Equal(t, recurring.SweepResult{Created: 1}, res)

	all, err := s.AllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Date.Equal(time.Date(2024, 4, 30, 12, 0, 0, 0, cst)), "got %v", all[0].Date)
}

func TestEngine_SweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	addTemplate(t, s, coffee())
	e := recurring.NewEngine(s, cst)
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, cst)

	res, err := e.Sweep(ctx, now, recurring.Skip)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)

	res, err = e.Sweep(ctx, now.Add(2*time.Hour), recurring.Skip)
	require.NoError(t, err)
	assert.Equal(t, recurring.SweepResult{Skipped: 4}, res)

	all, err := s.AllRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "美式", all[0].Note)
}

func TestEngine_SweepPolicies(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, cst)

	t.Run("replace swaps records", func(t *testing.T) {
		s := openStore(t)
		addTemplate(t, s, coffee())
		e := recurring.NewEngine(s, cst, recurring.WithLookahead(0))

		_, err := e.Sweep(ctx, now, recurring.Skip)
		require.NoError(t, err)
		before, _ := s.AllRecords(ctx)
		require.Len(t, before, 1)

		res, err := e.Sweep(ctx, now, recurring.Replace)
		require.NoError(t, err)
		assert.Equal(t, recurring.SweepResult{Created: 1}, res)

		after, _ := s.AllRecords(ctx)
		require.Len(t, after, 1)
		assert.NotEqual(t, before[0].ID, after[0].ID)

		old, err := s.GetRecord(ctx, before[0].ID)
		require.NoError(t, err)
		assert.Nil(t, old)
	})

	t.Run("create adds an unlinked record", func(t *testing.T) {
		s := openStore(t)
		tpl := addTemplate(t, s, coffee())
		e := recurring.NewEngine(s, cst, recurring.WithLookahead(0))

		_, err := e.Sweep(ctx, now, recurring.Skip)
		require.NoError(t, err)
		first, _ := s.AllRecords(ctx)
		require.Len(t, first, 1)

		res, err := e.Sweep(ctx, now, recurring.Create)
		require.NoError(t, err)
		assert.Equal(t, recurring.SweepResult{Created: 1}, res)

		all, _ := s.AllRecords(ctx)
		assert.Len(t, all, 2)

		link, err := s.LinkForDate(ctx, tpl.ID, now)
		require.NoError(t, err)
		require.NotNil(t, link)
		assert.Equal(t, first[0].ID, link.TransactionID)
	})
}

type failingReplace struct {
	*storage.Store
}

func (failingReplace) ReplaceMaterialized(context.Context, int64, core.Record, int64, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestEngine_ReplaceFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, cst)
	s := openStore(t)
	tpl := addTemplate(t, s, coffee())

	_, err := recurring.NewEngine(s, cst, recurring.WithLookahead(0)).Sweep(ctx, now, recurring.Skip)
	require.NoError(t, err)
	before, _ := s.AllRecords(ctx)
	require.Len(t, before, 1)

	e := recurring.NewEngine(failingReplace{s}, cst, recurring.WithLookahead(0))
	res, err := e.Sweep(ctx, now, recurring.Replace)
	require.NoError(t, err)
	assert.Equal(t, recurring.SweepResult{Errors: 1}, res)

	after, _ := s.AllRecords(ctx)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)

	link, err := s.LinkForDate(ctx, tpl.ID, now)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, before[0].ID, link.TransactionID)
}

func TestEngine_TwoPhase(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	addTemplate(t, s, coffee())
	addTemplate(t, s, rent(6))
	e := recurring.NewEngine(s, cst, recurring.WithLookahead(1))
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, cst)

	pending, err := e.FindPending(ctx, now)
	require.NoError(t, err)
	// coffee on the 5th and 6th, rent on the 6th
	require.Len(t, pending, 3)
	for _, p := range pending {
		assert.False(t, p.Duplicate())
	}

	res := e.Resolve(ctx, pending, nil)
	assert.Equal(t, recurring.SweepResult{Created: 3}, res)

	pending, err = e.FindPending(ctx, now)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	var asked []string
	res = e.Resolve(ctx, pending, func(p recurring.Pending) recurring.Decision {
		assert.True(t, p.Duplicate())
		asked = append(asked, p.Template.Name)
		if p.Template.Name == "房租" {
			return recurring.Replace
		}
		return recurring.Skip
	})
	assert.Len(t, asked, 3)
	assert.Equal(t, recurring.SweepResult{Created: 1, Skipped: 2}, res)
}

func TestEngine_MonthlyNotYetDue(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	addTemplate(t, s, rent(20))
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, cst)

	pending, err := recurring.NewEngine(s, cst).FindPending(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = recurring.NewEngine(s, cst, recurring.WithLookahead(15)).FindPending(ctx, now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].TargetDate.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, cst)))
}

func TestEngine_DisabledTemplates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tpl := coffee()
	tpl.Enabled = false
	tpl = addTemplate(t, s, tpl)
	e := recurring.NewEngine(s, cst)
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, cst)

	res, err := e.Sweep(ctx, now, recurring.Skip)
	require.NoError(t, err)
	assert.Zero(t, res)

	_, err = e.QuickAdd(ctx, tpl, now)
	assert.ErrorIs(t, err, recurring.ErrTemplateDisabled)
}

func TestEngine_QuickAdd(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tpl := addTemplate(t, s, rent(20))
	e := recurring.NewEngine(s, cst)

	id, err := e.QuickAdd(ctx, tpl, time.Date(2024, 3, 25, 9, 0, 0, 0, cst))
	require.NoError(t, err)

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Date.Equal(time.Date(2024, 4, 20, 12, 0, 0, 0, cst)))

	_, err = e.QuickAdd(ctx, tpl, time.Date(2024, 3, 26, 9, 0, 0, 0, cst))
	assert.ErrorIs(t, err, storage.ErrAlreadyMaterialized)
}
