package notification

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRenderSMS(t *testing.T) {
	tests := []struct {
		name string
		n    *Notification
		want string
	}{
		{
			name: "overdue template",
			n:    &Notification{Type: TypePaymentLate, Title: "Rent overdue", Message: "Your rent is 3 days late."},
			want: "OVERDUE: Rent overdue. Your rent is 3 days late.",
		},
		{
			name: "default template collapses whitespace",
			n:    &Notification{Type: TypeMaintenanceUpdate, Title: "Repair", Message: "Plumber arrives\n\ntomorrow."},
			want: "Repair: Plumber arrives tomorrow.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderSMS(tt.n)
			if err != nil {
				t.Fatalf("RenderSMS failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRenderSMS_Truncates(t *testing.T) {
	n := &Notification{Type: TypeSystem, Title: "Notice", Message: strings.Repeat("á", 400)}
	got, err := RenderSMS(n)
	if err != nil {
		t.Fatalf("RenderSMS failed: %v", err)
	}
	if utf8.RuneCountInString(got) != smsMaxLen || !strings.HasSuffix(got, "...") {
		t.Errorf("Expected %d runes ending in ellipsis, got %d", smsMaxLen, utf8.RuneCountInString(got))
	}
}

func TestRenderEmail_EscapesContent(t *testing.T) {
	n := &Notification{ID: "n1", Type: TypeContractExpiring, Title: "<b>Lease</b>", Message: "First.\n\nSecond <script>"}
	html, err := RenderEmail(BuildEmailData(n, "Ana", "", "https://cdn.example.com/logo.png"))
	if err != nil {
		t.Fatalf("RenderEmail failed: %v", err)
	}
	if strings.Contains(html, "<script>") || strings.Contains(html, "<b>Lease") {
		t.Error("Expected user content to be escaped")
	}
	if !strings.Contains(html, "Contract expiring soon") {
		t.Error("Expected type heading")
	}
	if strings.Count(html, "<p>First.</p>") != 1 {
		t.Error("Expected message split into paragraphs")
	}
	if strings.Contains(html, `class="btn"`) {
		t.Error("Expected no action button without an app URL")
	}
}

func TestEmailSubject(t *testing.T) {
	n := &Notification{Title: "Rent overdue", Priority: PriorityUrgent}
	if got := EmailSubject(n); got != "[Urgent] Rent overdue" {
		t.Errorf("Expected urgent prefix, got %q", got)
	}
	n.Priority = PriorityHigh
	if got := EmailSubject(n); got != "Rent overdue" {
		t.Errorf("Expected plain subject, got %q", got)
	}
}
