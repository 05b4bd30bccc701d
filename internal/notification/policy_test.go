package notification

import (
	"reflect"
	"testing"
	"time"

	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

func newTestPolicy(t *testing.T, tz string) *Policy {
	t.Helper()
	p, err := NewPolicy(tz, observability.NewNopLogger())
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return p
}

func at(hour int) time.Time {
	return time.Date(2026, 5, 4, hour, 30, 0, 0, time.UTC)
}

func quiet(start, end int) *Preference {
	p := DefaultPreference("u1")
	p.QuietHoursStart = intPtr(start)
	p.QuietHoursEnd = intPtr(end)
	return p
}

func TestPolicy_UnknownTypeAllChannelsEligible(t *testing.T) {
	p := newTestPolicy(t, "UTC")
	pref := &Preference{UserID: "u1", Channels: Matrix{TypeMaintenanceUpdate: {Push: false}}}

	for _, typ := range Types {
		if typ == TypeMaintenanceUpdate {
			continue
		}
		n := &Notification{Type: typ, Priority: PriorityNormal}
		got := p.Eligible(n, pref, at(12))
		if !reflect.DeepEqual(got, Channels) {
			t.Errorf("type %s: expected all channels, got %v", typ, got)
		}
	}
}

func TestPolicy_ExampleScenario(t *testing.T) {
	p := newTestPolicy(t, "UTC")
	pref := &Preference{UserID: "u1", Channels: Matrix{TypePaymentReminder: {Push: true, Email: false}}}
	n := &Notification{Type: TypePaymentReminder, Priority: PriorityNormal, Channels: []Channel{Push, Email}}

	got := p.Eligible(n, pref, at(12))
	if !reflect.DeepEqual(got, []Channel{Push}) {
		t.Errorf("Expected [push], got %v", got)
	}
}

func TestPolicy_AbsentChannelIsEnabled(t *testing.T) {
	p := newTestPolicy(t, "UTC")
	pref := &Preference{UserID: "u1", Channels: Matrix{TypePaymentReminder: {Email: false}}}
	n := &Notification{Type: TypePaymentReminder, Priority: PriorityNormal}

	got := p.Eligible(n, pref, at(12))
	if !reflect.DeepEqual(got, []Channel{Push, SMS}) {
		t.Errorf("Expected [push sms], got %v", got)
	}
}

func TestInWindow_NonWrapping(t *testing.T) {
	start, end := 9, 17
	for h := 0; h < 24; h++ {
		want := h >= start && h < end
		if got := inWindow(start, end, h); got != want {
			t.Errorf("hour %d: expected %v, got %v", h, want, got)
		}
	}
}

func TestInWindow_WrapsMidnight(t *testing.T) {
	suppressed := map[int]bool{22: true, 23: true, 0: true, 1: true, 2: true, 3: true, 4: true, 5: true}
	for h := 0; h < 24; h++ {
		if got := inWindow(22, 6, h); got != suppressed[h] {
			t.Errorf("hour %d: expected %v, got %v", h, suppressed[h], got)
		}
	}
}

func TestInWindow_EqualBoundsNeverSuppress(t *testing.T) {
	for h := 0; h < 24; h++ {
		if inWindow(8, 8, h) {
			t.Errorf("hour %d: expected no suppression for an empty window", h)
		}
	}
}

func TestPolicy_QuietHoursSuppressNonUrgent(t *testing.T) {
	p := newTestPolicy(t, "UTC")

	tests := []struct {
		name     string
		pref     *Preference
		hour     int
		priority Priority
		want     int
	}{
		{"inside window normal", quiet(9, 17), 10, PriorityNormal, 0},
		{"inside window high", quiet(9, 17), 16, PriorityHigh, 0},
		{"at end bound", quiet(9, 17), 17, PriorityNormal, 3},
		{"outside window", quiet(9, 17), 8, PriorityLow, 3},
		{"wrapped late night", quiet(22, 6), 23, PriorityNormal, 0},
		{"wrapped early morning", quiet(22, 6), 5, PriorityNormal, 0},
		{"wrapped daytime", quiet(22, 6), 6, PriorityNormal, 3},
		{"no quiet hours", DefaultPreference("u1"), 3, PriorityLow, 3},
		{"only start set", &Preference{QuietHoursStart: intPtr(0)}, 3, PriorityLow, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Notification{Type: TypeSystem, Priority: tt.priority}
			got := p.Eligible(n, tt.pref, at(tt.hour))
			if len(got) != tt.want {
				t.Errorf("Expected %d channels, got %v", tt.want, got)
			}
		})
	}
}

func TestPolicy_UrgentBypassesEveryWindow(t *testing.T) {
	p := newTestPolicy(t, "UTC")
	n := &Notification{Type: TypePaymentLate, Priority: PriorityUrgent}

	for start := 0; start < 24; start++ {
		for end := 0; end < 24; end++ {
			for h := 0; h < 24; h++ {
				if got := p.Eligible(n, quiet(start, end), at(h)); len(got) != len(Channels) {
					t.Fatalf("window %d-%d hour %d: urgent suppressed, got %v", start, end, h, got)
				}
			}
		}
	}
}

func TestPolicy_UsesUserTimezone(t *testing.T) {
	p := newTestPolicy(t, "UTC")
	pref := quiet(22, 6)
	pref.Timezone = "America/Mexico_City"

	// 03:30 UTC is 21:30 the previous evening in Mexico City (UTC-6).
	if p.InQuietHours(pref, at(3)) {
		t.Error("Expected 21:30 local time to be outside quiet hours")
	}
	// 05:30 UTC is 23:30 local.
	if !p.InQuietHours(pref, at(5)) {
		t.Error("Expected 23:30 local time to be inside quiet hours")
	}
}

func TestPolicy_DefaultTimezoneWhenUnset(t *testing.T) {
	pref := quiet(22, 6)

	utc := newTestPolicy(t, "")
	if utc.DefaultLocation().String() != "UTC" {
		t.Fatalf("Expected UTC default, got %s", utc.DefaultLocation())
	}
	if utc.InQuietHours(pref, at(12)) {
		t.Error("Expected noon UTC to be outside quiet hours")
	}

	// 12:30 UTC is 22:30 in Asia/Tokyo (UTC+9, no DST).
	tokyo := newTestPolicy(t, "Asia/Tokyo")
	if !tokyo.InQuietHours(pref, at(13)) {
		t.Error("Expected configured default timezone to be applied")
	}
}

func TestPolicy_UnknownUserTimezoneFallsBack(t *testing.T) {
	p := newTestPolicy(t, "UTC")
	pref := quiet(9, 17)
	pref.Timezone = "Mars/Olympus"

	if !p.InQuietHours(pref, at(10)) {
		t.Error("Expected fallback to default timezone")
	}
}

func TestNewPolicy_InvalidDefault(t *testing.T) {
	if _, err := NewPolicy("Nowhere/City", observability.NewNopLogger()); err == nil {
		t.Error("Expected error for invalid default timezone")
	}
}
