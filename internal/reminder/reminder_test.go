package reminder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sapliy/rental-ecosystem/internal/notification"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	asOf := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name          string
		due           time.Time
		wantOK        bool
		wantKind      Kind
		wantDays      int
		wantMilestone int
		wantPriority  notification.Priority
		wantType      notification.Type
	}{
		{name: "too far ahead", due: date(2026, 3, 18)},
		{name: "seven days ahead", due: date(2026, 3, 17), wantOK: true, wantKind: KindUpcoming, wantDays: 7,
			wantPriority: notification.PriorityNormal, wantType: notification.TypePaymentReminder},
		{name: "tomorrow", due: date(2026, 3, 11), wantOK: true, wantKind: KindUpcoming, wantDays: 1,
			wantPriority: notification.PriorityNormal, wantType: notification.TypePaymentReminder},
		{name: "due today", due: date(2026, 3, 10), wantOK: true, wantKind: KindDue,
			wantPriority: notification.PriorityHigh, wantType: notification.TypePaymentDue},
		{name: "one day late", due: date(2026, 3, 9), wantOK: true, wantKind: KindOverdue, wantDays: 1, wantMilestone: 1,
			wantPriority: notification.PriorityHigh, wantType: notification.TypePaymentLate},
		{name: "five days late stays on milestone three", due: date(2026, 3, 5), wantOK: true, wantKind: KindOverdue, wantDays: 5, wantMilestone: 3,
			wantPriority: notification.PriorityHigh, wantType: notification.TypePaymentLate},
		{name: "a week late is urgent", due: date(2026, 3, 3), wantOK: true, wantKind: KindOverdue, wantDays: 7, wantMilestone: 7,
			wantPriority: notification.PriorityUrgent, wantType: notification.TypePaymentLate},
		{name: "forty days late caps at thirty", due: date(2026, 1, 29), wantOK: true, wantKind: KindOverdue, wantDays: 40, wantMilestone: 30,
			wantPriority: notification.PriorityUrgent, wantType: notification.TypePaymentLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := Classify(Payment{ID: "p1", UserID: "u1", DueDate: tt.due}, asOf, time.UTC, DefaultLeadDays)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if !ok {
				return
			}
			if r.Kind != tt.wantKind || r.Days != tt.wantDays || r.Milestone != tt.wantMilestone {
				t.Errorf("Expected %s/%d/%d, got %s/%d/%d", tt.wantKind, tt.wantDays, tt.wantMilestone, r.Kind, r.Days, r.Milestone)
			}
			req := r.Request()
			if req.Priority != tt.wantPriority || req.Type != tt.wantType {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantType, tt.wantPriority, req.Type, req.Priority)
			}
		})
	}
}

func TestClassify_UsesLocationCalendarDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 03:00 UTC on the 11th is still the 10th in Mexico City.
	asOf := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	r, ok := Classify(Payment{ID: "p1", DueDate: date(2026, 3, 10)}, asOf, loc, DefaultLeadDays)
	if !ok || r.Kind != KindDue {
		t.Errorf("Expected due today in local calendar, got %v %s", ok, r.Kind)
	}
}

func TestReminder_Key(t *testing.T) {
	asOf := date(2026, 3, 10)
	p := Payment{ID: "p1", DueDate: date(2026, 3, 5)}

	r, _ := Classify(p, asOf, time.UTC, DefaultLeadDays)
	if got := r.Key(); got != "payment:p1:overdue:3:2026-03-05" {
		t.Errorf("Unexpected overdue key %s", got)
	}

	// Later days inside the same milestone share the key.
	next, _ := Classify(p, asOf.AddDate(0, 0, 1), time.UTC, DefaultLeadDays)
	if next.Key() != r.Key() {
		t.Errorf("Expected same key within a milestone, got %s and %s", r.Key(), next.Key())
	}

	up, _ := Classify(Payment{ID: "p2", DueDate: date(2026, 3, 12)}, asOf, time.UTC, DefaultLeadDays)
	if got := up.Key(); got != "payment:p2:upcoming:2026-03-12" {
		t.Errorf("Unexpected upcoming key %s", got)
	}
}

func TestReminder_Request(t *testing.T) {
	r, _ := Classify(Payment{ID: "p1", UserID: "u1", ContractID: "c1", Property: "Calle 5 #12", Amount: 1200, DueDate: date(2026, 3, 12)},
		date(2026, 3, 10), time.UTC, DefaultLeadDays)
	req := r.Request()

	if req.UserID != "u1" || req.ReminderKey != r.Key() {
		t.Errorf("Unexpected request %+v", req)
	}
	if req.Reference == nil || req.Reference.Type != "payment" || req.Reference.ID != "p1" {
		t.Errorf("Expected payment reference, got %+v", req.Reference)
	}
	want := "Your payment of $1200.00 for Calle 5 #12 is due on 2026-03-12, in 2 days."
	if req.Message != want {
		t.Errorf("Expected %q, got %q", want, req.Message)
	}
	var data map[string]any
	if err := json.Unmarshal(req.Data, &data); err != nil {
		t.Fatalf("invalid data: %v", err)
	}
	if data["due_date"] != "2026-03-12" || data["kind"] != "upcoming" {
		t.Errorf("Unexpected data %v", data)
	}
}
