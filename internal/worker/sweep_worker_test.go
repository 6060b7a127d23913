package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"qingbu/internal/amqp"
	"qingbu/internal/core"
	"qingbu/internal/export"
	"qingbu/internal/recurring"
)

type fakeSweeper struct {
	calls    []recurring.Decision
	created  int
	err      error
	lastTime time.Time
}

func (f *fakeSweeper) Sweep(_ context.Context, now time.Time, policy recurring.Decision) (recurring.SweepResult, error) {
	f.calls = append(f.calls, policy)
	f.lastTime = now
	if f.err != nil {
		return recurring.SweepResult{}, f.err
	}
	return recurring.SweepResult{Created: f.created}, nil
}

type fakeLister struct {
	start, end time.Time
}

func (f *fakeLister) AllRecords(context.Context) ([]core.Record, error) { return nil, nil }

func (f *fakeLister) RecordsByRange(_ context.Context, start, end time.Time) ([]core.Record, error) {
	f.start, f.end = start, end
	return []core.Record{{ID: 1, Amount: core.FromCents(100), Type: core.Expense, Category: "餐饮", Date: start}}, nil
}

type fakePusher struct {
	pushes int
	err    error
}

func (p *fakePusher) Push(_ context.Context, _ []string, rows [][]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.pushes++
	return "'轻簿'!A1:F2", nil
}

var (
	loc = time.UTC
	day = time.Date(2024, 6, 1, 9, 0, 0, 0, loc)
)

func clockAt(t *time.Time) Option {
	return WithClock(func() time.Time { return *t })
}

func TestRunOnce_GatedPerDay(t *testing.T) {
	sw := &fakeSweeper{}
	now := day
	w := NewSweepWorker(sw, recurring.NewGate(loc), recurring.Skip, clockAt(&now))

	ran, err := w.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("first RunOnce() = %v, %v; want true, nil", ran, err)
	}

	now = day.Add(6 * time.Hour)
	ran, err = w.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("same-day RunOnce() = %v, %v; want false, nil", ran, err)
	}

	now = day.AddDate(0, 0, 1)
	ran, _ = w.RunOnce(context.Background())
	if !ran {
		t.Error("next-day RunOnce() did not sweep")
	}
	if len(sw.calls) != 2 {
		t.Errorf("sweeps = %d, want 2", len(sw.calls))
	}
}

func TestRunOnce_FailureLeavesGateOpen(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("db locked")}
	now := day
	w := NewSweepWorker(sw, recurring.NewGate(loc), recurring.Skip, clockAt(&now))

	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	sw.err = nil
	ran, err := w.RunOnce(context.Background())
	if err != nil || !ran {
		t.Errorf("retry RunOnce() = %v, %v; want true, nil", ran, err)
	}
}

type blockingSweeper struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
}

func (b *blockingSweeper) Sweep(context.Context, time.Time, recurring.Decision) (recurring.SweepResult, error) {
	b.calls.Add(1)
	if b.active.Add(1) > 1 {
		b.overlap.Store(true)
	}
	defer b.active.Add(-1)
	b.started <- struct{}{}
	<-b.release
	return recurring.SweepResult{Created: 1}, nil
}

func TestSweeps_DoNotOverlap(t *testing.T) {
	sw := &blockingSweeper{started: make(chan struct{}, 2), release: make(chan struct{})}
	now := day
	w := NewSweepWorker(sw, recurring.NewGate(loc), recurring.Create, clockAt(&now))

	var wg sync.WaitGroup
	ran := make(chan bool, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		r, _ := w.RunOnce(context.Background())
		ran <- r
	}()
	<-sw.started

	// a broker request arriving while the ticker sweep is still running
	go func() {
		defer wg.Done()
		_ = w.HandleSweepRequest(context.Background(), amqp.NewSweepRequest("", false))
		ran <- false
	}()
	time.Sleep(50 * time.Millisecond)
	close(sw.release)
	wg.Wait()

	if got := sw.calls.Load(); got != 1 {
		t.Errorf("sweeps = %d, want 1", got)
	}
	if sw.overlap.Load() {
		t.Error("two sweeps ran at the same time")
	}
	if !<-ran && !<-ran {
		t.Error("no sweep reported as run")
	}
}

func TestHandleSweepRequest(t *testing.T) {
	tests := []struct {
		name      string
		msg       *amqp.SweepRequest
		preMark   bool
		wantCalls []recurring.Decision
	}{
		{
			name:      "default policy",
			msg:       &amqp.SweepRequest{ID: "a"},
			wantCalls: []recurring.Decision{recurring.Create},
		},
		{
			name:      "explicit policy",
			msg:       &amqp.SweepRequest{ID: "b", Policy: "replace"},
			wantCalls: []recurring.Decision{recurring.Replace},
		},
		{
			name:    "gated",
			msg:     &amqp.SweepRequest{ID: "c", Policy: "skip"},
			preMark: true,
		},
		{
			name:      "forced past gate",
			msg:       &amqp.SweepRequest{ID: "d", Force: true},
			preMark:   true,
			wantCalls: []recurring.Decision{recurring.Create},
		},
		{
			name: "invalid policy is dropped",
			msg:  &amqp.SweepRequest{ID: "e", Policy: "merge"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := &fakeSweeper{}
			gate := recurring.NewGate(loc)
			if tt.preMark {
				gate.MarkChecked(day)
			}
			now := day
			w := NewSweepWorker(sw, gate, recurring.Create, clockAt(&now))

			if err := w.HandleSweepRequest(context.Background(), tt.msg); err != nil {
				t.Fatalf("HandleSweepRequest() error = %v", err)
			}
			if len(sw.calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", sw.calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if sw.calls[i] != tt.wantCalls[i] {
					t.Errorf("call %d policy = %v, want %v", i, sw.calls[i], tt.wantCalls[i])
				}
			}
		})
	}
}

func TestHandleSweepRequest_SweepErrorRequeues(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("boom")}
	w := NewSweepWorker(sw, recurring.NewGate(loc), recurring.Skip)

	if err := w.HandleSweepRequest(context.Background(), &amqp.SweepRequest{ID: "x"}); err == nil {
		t.Error("expected error so the message is requeued")
	}
}

func TestSheetsSync(t *testing.T) {
	tests := []struct {
		name       string
		created    int
		pushErr    error
		wantPushes int
	}{
		{"pushes after creating", 2, nil, 1},
		{"nothing created", 0, nil, 0},
		{"push failure is not fatal", 1, errors.New("quota"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &fakeLister{}
			pusher := &fakePusher{err: tt.pushErr}
			now := day
			w := NewSweepWorker(&fakeSweeper{created: tt.created}, recurring.NewGate(loc), recurring.Skip,
				clockAt(&now),
				WithSheetsSync(export.NewExporter(lister, loc), pusher, loc))

			if _, err := w.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce() error = %v", err)
			}
			if pusher.pushes != tt.wantPushes {
				t.Errorf("pushes = %d, want %d", pusher.pushes, tt.wantPushes)
			}
			if tt.created > 0 && !lister.start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, loc)) {
				t.Errorf("export range start = %v, want start of 2024", lister.start)
			}
		})
	}
}
