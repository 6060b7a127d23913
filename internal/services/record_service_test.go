package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"qingbu/internal/amqp"
	"qingbu/internal/core"
	"qingbu/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.RecordEvent
	err    error
	closed bool
}

func (p *fakePublisher) PublishRecordEvent(_ context.Context, msg *amqp.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, msg)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func (p *fakePublisher) ops() []amqp.RecordOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]amqp.RecordOp, len(p.events))
	for i, e := range p.events {
		ops[i] = e.Op
	}
	return ops
}

func newService(t *testing.T, pub EventPublisher) (*RecordService, *storage.Store) {
	t.Helper()
	st := storage.New(filepath.Join(t.TempDir(), "qingbu.db"), storage.WithLocation(time.UTC))
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewRecordService(st, pub), st
}

func breakfast() core.Record {
	return core.Record{
		Amount:   core.FromCents(3250),
		Type:     core.Expense,
		Category: " 餐饮/早餐 ",
		Date:     time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC),
		Note:     "早餐咖啡",
	}
}

func TestRecordService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, st := newService(t, pub)

	id, err := svc.Add(ctx, breakfast())
	require.NoError(t, err)

	got, err := st.GetRecord(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "餐饮/早餐", got.Category)

	amount := core.FromCents(4000)
	require.NoError(t, svc.Update(ctx, id, core.RecordPatch{Amount: &amount}))

	// empty patch: no write, no event
	require.NoError(t, svc.Update(ctx, id, core.RecordPatch{}))

	require.NoError(t, svc.Delete(ctx, id))

	got, err = st.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, []amqp.RecordOp{amqp.RecordCreated, amqp.RecordUpdated, amqp.RecordDeleted}, pub.ops())
	for _, e := range pub.events {
		assert.Equal(t, id, e.RecordID)
	}
}

func TestRecordService_AddValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Record)
		want   error
	}{
		{"zero amount", func(r *core.Record) { r.Amount = core.FromCents(0) }, core.ErrInvalidAmount},
		{"bad type", func(r *core.Record) { r.Type = "transfer" }, core.ErrInvalidType},
		{"blank category", func(r *core.Record) { r.Category = "  " }, core.ErrEmptyCategory},
		{"zero date", func(r *core.Record) { r.Date = time.Time{} }, core.ErrInvalidDate},
		{"unknown parent", func(r *core.Record) { r.Category = "不存在" }, core.ErrUnknownCategory},
		{"expense parent on income", func(r *core.Record) { r.Type = core.Income }, core.ErrUnknownCategory},
		{"income parent on expense", func(r *core.Record) { r.Category = "工资" }, core.ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			svc, st := newService(t, pub)

			r := breakfast()
			tt.mutate(&r)
			_, err := svc.Add(context.Background(), r)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, pub.ops())

			all, err := st.AllRecords(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestRecordService_UpdateValidation(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	id, err := svc.Add(ctx, breakfast())
	require.NoError(t, err)

	zero := core.FromCents(0)
	blank := ""
	bad := core.RecordType("x")

	assert.ErrorIs(t, svc.Update(ctx, id, core.RecordPatch{Amount: &zero}), core.ErrInvalidAmount)
	assert.ErrorIs(t, svc.Update(ctx, id, core.RecordPatch{Category: &blank}), core.ErrEmptyCategory)
	assert.ErrorIs(t, svc.Update(ctx, id, core.RecordPatch{Type: &bad}), core.ErrInvalidType)
	assert.Equal(t, []amqp.RecordOp{amqp.RecordCreated}, pub.ops())
}

func TestRecordService_UpdateCategoryMatchesType(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, st := newService(t, pub)

	id, err := svc.Add(ctx, breakfast())
	require.NoError(t, err)

	income := core.Income
	salary := "工资"
	unknown := "不存在/子类"
	snack := " 零食 "

	assert.ErrorIs(t, svc.Update(ctx, id, core.RecordPatch{Type: &income}), core.ErrUnknownCategory)
	assert.ErrorIs(t, svc.Update(ctx, id, core.RecordPatch{Category: &salary}), core.ErrUnknownCategory)
	assert.ErrorIs(t, svc.Update(ctx, id, core.RecordPatch{Category: &unknown}), core.ErrUnknownCategory)

	require.NoError(t, svc.Update(ctx, id, core.RecordPatch{Type: &income, Category: &salary}))
	got, err := st.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.Income, got.Type)
	assert.Equal(t, "工资", got.Category)

	expense := core.Expense
	require.NoError(t, svc.Update(ctx, id, core.RecordPatch{Type: &expense, Category: &snack}))
	got, err = st.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "零食", got.Category)

	assert.Equal(t, []amqp.RecordOp{amqp.RecordCreated, amqp.RecordUpdated, amqp.RecordUpdated}, pub.ops())
}

func TestRecordService_LongNote(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, nil)

	r := breakfast()
	r.Note = strings.Repeat("早", 300)
	id, err := svc.Add(ctx, r)
	require.NoError(t, err)

	got, err := st.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, r.Note, got.Note)

	note := strings.Repeat("晚餐和朋友一起", 100)
	require.NoError(t, svc.Update(ctx, id, core.RecordPatch{Note: &note}))
	got, err = st.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, note, got.Note)
}

func TestRecordService_NotFound(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	note := "x"
	assert.ErrorIs(t, svc.Update(ctx, 99, core.RecordPatch{Note: &note}), ErrRecordNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 99), ErrRecordNotFound)
	assert.Empty(t, pub.ops())
}

func TestRecordService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, st := newService(t, pub)

	id, err := svc.Add(ctx, breakfast())
	require.NoError(t, err)

	got, err := st.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRecordService_NilPublisher(t *testing.T) {
	svc, _ := newService(t, nil)

	_, err := svc.Add(context.Background(), breakfast())
	assert.NoError(t, err)
}

func TestRecordService_NotInitialized(t *testing.T) {
	st := storage.New(filepath.Join(t.TempDir(), "x.db"))
	svc := NewRecordService(st, nil)

	err := svc.Update(context.Background(), 1, core.RecordPatch{})
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
}

func TestRecordService_Close(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}
