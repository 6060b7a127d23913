package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"qingbu/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rentTemplate() core.Template {
	return core.Template{
		Name:       "房租",
		Amount:     core.FromCents(300000),
		Type:       core.Expense,
		Category:   "住房/房租",
		PeriodType: core.Monthly,
		PeriodDay:  5,
		Enabled:    true,
	}
}

func TestStore_TemplateCRUD(t *testing.T) {
	ctx := context.Background()
	clock := at(2024, 1, 1, 10, 0)
	s := New(filepath.Join(t.TempDir(), "qingbu.db"), WithLocation(testLoc), WithClock(func() time.Time { return clock }))
	require.NoError(t, s.Init(ctx))
	defer s.Close()

	id, err := s.AddTemplate(ctx, rentTemplate())
	require.NoError(t, err)

	got, err := s.GetTemplate(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "房租", got.Name)
	assert.Equal(t, 5, got.PeriodDay)
	assert.True(t, got.Enabled)
	assert.True(t, got.CreatedAt.Equal(clock))
	assert.True(t, got.UpdatedAt.Equal(clock))

	// empty patch does not touch updated_at
	clock = clock.Add(time.Hour)
	require.NoError(t, s.UpdateTemplate(ctx, id, core.TemplatePatch{}))
	got, _ = s.GetTemplate(ctx, id)
	assert.True(t, got.UpdatedAt.Equal(at(2024, 1, 1, 10, 0)))

	require.NoError(t, s.ToggleTemplate(ctx, id, false))
	got, _ = s.GetTemplate(ctx, id)
	assert.False(t, got.Enabled)
	assert.True(t, got.UpdatedAt.Equal(clock))

	enabled, err := s.EnabledTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	// disabled templates stay listed
	income := core.Income
	all, err := s.Templates(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	incomes, err := s.Templates(ctx, &income)
	require.NoError(t, err)
	assert.Empty(t, incomes)

	missing, err := s.GetTemplate(ctx, id+100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_MaterializeRecordIsUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tplID, err := s.AddTemplate(ctx, rentTemplate())
	require.NoError(t, err)

	rec := expense(300000, "住房/房租", at(2024, 3, 5, 12, 0))
	recID, err := s.MaterializeRecord(ctx, rec, tplID, at(2024, 3, 5, 12, 0))
	require.NoError(t, err)

	has, err := s.HasLinkForDate(ctx, tplID, at(2024, 3, 5, 23, 59))
	require.NoError(t, err)
	assert.True(t, has)

	// same day, different time of day collapses onto the same key
	_, err = s.MaterializeRecord(ctx, rec, tplID, at(2024, 3, 5, 7, 0))
	assert.ErrorIs(t, err, ErrAlreadyMaterialized)

	all, err := s.AllRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed materialization must not leave a record")

	link, err := s.LinkForDate(ctx, tplID, at(2024, 3, 5, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, recID, link.TransactionID)
	assert.True(t, link.TargetDate.Equal(at(2024, 3, 5, 0, 0)))
}

func TestStore_DeleteRecordFreesSlot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tplID, _ := s.AddTemplate(ctx, rentTemplate())
	day := at(2024, 4, 5, 12, 0)
	recID, err := s.MaterializeRecord(ctx, expense(300000, "住房/房租", day), tplID, day)
	require.NoError(t, err)

	require.NoError(t, s.DeleteRecord(ctx, recID))
	has, err := s.HasLinkForDate(ctx, tplID, day)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.MaterializeRecord(ctx, expense(300000, "住房/房租", day), tplID, day)
	assert.NoError(t, err)
}

func TestStore_DeleteTemplateCascadesLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tplID, _ := s.AddTemplate(ctx, rentTemplate())
	for _, d := range []int{5, 6} {
		day := at(2024, 5, d, 12, 0)
		_, err := s.MaterializeRecord(ctx, expense(300000, "住房/房租", day), tplID, day)
		require.NoError(t, err)
	}
	links, err := s.LinksByTemplate(ctx, tplID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.True(t, links[0].TargetDate.After(links[1].TargetDate))

	require.NoError(t, s.DeleteTemplate(ctx, tplID))

	links, err = s.LinksByTemplate(ctx, tplID)
	require.NoError(t, err)
	assert.Empty(t, links)

	records, err := s.AllRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2, "records outlive their template")
}

func TestStore_ReplaceMaterialized(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tplID, _ := s.AddTemplate(ctx, rentTemplate())
	day := at(2024, 6, 5, 12, 0)
	oldID, err := s.MaterializeRecord(ctx, expense(300000, "住房/房租", day), tplID, day)
	require.NoError(t, err)

	newID, err := s.ReplaceMaterialized(ctx, oldID, expense(320000, "住房/房租", day), tplID, day)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	old, err := s.GetRecord(ctx, oldID)
	require.NoError(t, err)
	assert.Nil(t, old)

	link, err := s.LinkForDate(ctx, tplID, day)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, newID, link.TransactionID)

	t.Run("failure keeps the old record", func(t *testing.T) {
		other := at(2024, 6, 6, 12, 0)
		_, err := s.MaterializeRecord(ctx, expense(300000, "住房/房租", other), tplID, other)
		require.NoError(t, err)

		// the 6th is already bound to otherID, so inserting the link fails
		_, err = s.ReplaceMaterialized(ctx, newID, expense(1, "住房/房租", other), tplID, other)
		assert.ErrorIs(t, err, ErrAlreadyMaterialized)

		kept, err := s.GetRecord(ctx, newID)
		require.NoError(t, err)
		require.NotNil(t, kept)
		has, err := s.HasLinkForDate(ctx, tplID, day)
		require.NoError(t, err)
		assert.True(t, has)

		records, err := s.AllRecords(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}
