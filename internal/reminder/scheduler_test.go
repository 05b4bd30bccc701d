package reminder_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sapliy/rental-ecosystem/internal/notification"
	"github.com/sapliy/rental-ecosystem/internal/notification/testutil"
	"github.com/sapliy/rental-ecosystem/internal/reminder"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

type mockSource struct {
	DuePaymentsFunc func(ctx context.Context, from, to time.Time) ([]reminder.Payment, error)
}

func (m *mockSource) DuePayments(ctx context.Context, from, to time.Time) ([]reminder.Payment, error) {
	return m.DuePaymentsFunc(ctx, from, to)
}

func staticSource(payments ...reminder.Payment) *mockSource {
	return &mockSource{DuePaymentsFunc: func(ctx context.Context, from, to time.Time) ([]reminder.Payment, error) {
		return payments, nil
	}}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newService(t *testing.T, store *testutil.MemoryStore, push *testutil.MockSender, now time.Time) *notification.Service {
	t.Helper()
	logger := observability.NewNopLogger()
	policy, err := notification.NewPolicy("UTC", logger)
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return notification.NewService(store, testutil.NewMemoryPreferenceStore(), policy,
		notification.NewDispatcher(logger, push), logger,
		notification.WithClock(func() time.Time { return now }))
}

func TestScheduler_RunIsIdempotent(t *testing.T) {
	asOf := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := testutil.NewMemoryStore()
	push := &testutil.MockSender{ChannelValue: notification.Push}
	svc := newService(t, store, push, asOf)

	source := staticSource(
		reminder.Payment{ID: "p1", UserID: "u1", Amount: 900, DueDate: day(2026, 3, 13)},
		reminder.Payment{ID: "p2", UserID: "u2", Amount: 1200, DueDate: day(2026, 3, 10)},
		reminder.Payment{ID: "p3", UserID: "u3", Amount: 700, DueDate: day(2026, 3, 2)},
		reminder.Payment{ID: "p4", UserID: "u4", Amount: 500, DueDate: day(2026, 4, 1)},
	)
	s := reminder.NewScheduler(source, svc, reminder.Config{}, observability.NewNopLogger())

	first, err := s.Run(context.Background(), asOf)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if first.Scanned != 3 || first.Created != 3 || first.Duplicates != 0 {
		t.Errorf("Unexpected first report %+v", first)
	}

	second, err := s.Run(context.Background(), asOf.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if second.Created != 0 || second.Duplicates != 3 {
		t.Errorf("Expected rerun to create nothing, got %+v", second)
	}

	for _, user := range []string{"u1", "u2", "u3"} {
		list, _ := store.ListByUser(context.Background(), user, notification.ListOptions{})
		if len(list) != 1 {
			t.Errorf("Expected one reminder for %s, got %d", user, len(list))
		}
	}
	if push.AttemptCount() != 3 {
		t.Errorf("Expected three deliveries, got %d", push.AttemptCount())
	}
}

func TestScheduler_QueryWindow(t *testing.T) {
	var gotFrom, gotTo time.Time
	source := &mockSource{DuePaymentsFunc: func(ctx context.Context, from, to time.Time) ([]reminder.Payment, error) {
		gotFrom, gotTo = from, to
		return nil, nil
	}}
	s := reminder.NewScheduler(source, &fakeNotifier{}, reminder.Config{LeadDays: 3}, observability.NewNopLogger())

	if _, err := s.Run(context.Background(), time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !gotFrom.Equal(day(2026, 2, 8)) || !gotTo.Equal(day(2026, 3, 13)) {
		t.Errorf("Unexpected window %s - %s", gotFrom, gotTo)
	}
}

type fakeNotifier struct {
	NotifyFunc func(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error)
	RetryErr   error
	retries    int
}

func (f *fakeNotifier) Notify(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error) {
	if f.NotifyFunc == nil {
		return &notification.Notification{ID: req.ReminderKey}, nil
	}
	return f.NotifyFunc(ctx, req)
}

func (f *fakeNotifier) RetryUnsent(ctx context.Context) (int, error) {
	f.retries++
	return 2, f.RetryErr
}

func TestScheduler_Failures(t *testing.T) {
	asOf := day(2026, 3, 10)
	payments := staticSource(
		reminder.Payment{ID: "p1", UserID: "u1", DueDate: day(2026, 3, 10)},
		reminder.Payment{ID: "p2", UserID: "u2", DueDate: day(2026, 3, 9)},
	)

	t.Run("source error aborts", func(t *testing.T) {
		src := &mockSource{DuePaymentsFunc: func(ctx context.Context, from, to time.Time) ([]reminder.Payment, error) {
			return nil, errors.New("db down")
		}}
		n := &fakeNotifier{}
		s := reminder.NewScheduler(src, n, reminder.Config{}, observability.NewNopLogger())
		if _, err := s.Run(context.Background(), asOf); err == nil {
			t.Error("Expected source error")
		}
		if n.retries != 0 {
			t.Error("Expected no retry pass after a failed scan")
		}
	})

	t.Run("notify error is counted and scan continues", func(t *testing.T) {
		n := &fakeNotifier{NotifyFunc: func(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error) {
			if req.UserID == "u1" {
				return nil, errors.New("db down")
			}
			return &notification.Notification{ID: "n2"}, nil
		}}
		s := reminder.NewScheduler(payments, n, reminder.Config{}, observability.NewNopLogger())
		report, err := s.Run(context.Background(), asOf)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.Failed != 1 || report.Created != 1 || report.Retried != 2 {
			t.Errorf("Unexpected report %+v", report)
		}
	})

	t.Run("created but undelivered counts as created", func(t *testing.T) {
		n := &fakeNotifier{
			NotifyFunc: func(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error) {
				return &notification.Notification{ID: "n1"}, errors.New("mark sent failed")
			},
			RetryErr: errors.New("list failed"),
		}
		s := reminder.NewScheduler(payments, n, reminder.Config{}, observability.NewNopLogger())
		report, err := s.Run(context.Background(), asOf)
		if err != nil {
			t.Fatalf("Expected retry failure to be logged only, got %v", err)
		}
		if report.Created != 2 || report.Failed != 0 {
			t.Errorf("Unexpected report %+v", report)
		}
	})
}

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (c *countingRunner) Run(ctx context.Context, asOf time.Time) (reminder.Report, error) {
	c.calls.Add(1)
	return reminder.Report{AsOf: asOf, Created: 1}, c.err
}

func TestTrigger_RunsUntilCancelled(t *testing.T) {
	runner := &countingRunner{}
	trig := reminder.NewTrigger(runner, 10*time.Millisecond, observability.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trig.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 runs, got %d", runner.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected Start to return after cancel")
	}

	last, report := trig.LastRun()
	if last.IsZero() || report.Created != 1 {
		t.Errorf("Expected last run recorded, got %v %+v", last, report)
	}
	if !trig.NextRun().Equal(last.Add(10 * time.Millisecond)) {
		t.Errorf("Expected next run one interval after the last")
	}
}

func TestTrigger_FailedRunIsNotRecorded(t *testing.T) {
	runner := &countingRunner{err: errors.New("db down")}
	trig := reminder.NewTrigger(runner, time.Hour, observability.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trig.Start(ctx)

	if runner.calls.Load() != 1 {
		t.Errorf("Expected the immediate run, got %d", runner.calls.Load())
	}
	if last, _ := trig.LastRun(); !last.IsZero() {
		t.Error("Expected failed run not to be recorded")
	}
}
