package reminder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sapliy/rental-ecosystem/internal/notification"
)

// Kind is the reminder condition a payment is in on a given day.
type Kind string

const (
	KindUpcoming Kind = "upcoming"
	KindDue      Kind = "due"
	KindOverdue  Kind = "overdue"
)

// DefaultLeadDays is how many days ahead upcoming payments are announced.
const DefaultLeadDays = 7

// OverdueMilestones are the days-late marks that each produce one alert.
var OverdueMilestones = []int{1, 3, 7, 15, 30}

// Payment is a pending or late rent payment read from the business store.
type Payment struct {
	ID         string
	UserID     string
	ContractID string
	Property   string
	Amount     float64
	DueDate    time.Time
	Status     string
}

// Reminder is a payment classified as of one day.
type Reminder struct {
	Payment Payment
	Kind    Kind
	// Days is days until due for upcoming, days late for overdue and zero for due.
	Days      int
	Milestone int
	AsOf      time.Time
}

// civil truncates t to its calendar date in loc, expressed at UTC midnight so that
// subtracting two dates never crosses a DST change.
func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Classify decides whether p needs a reminder on the calendar day of asOf in loc.
func Classify(p Payment, asOf time.Time, loc *time.Location, leadDays int) (Reminder, bool) {
	today := civil(asOf, loc)
	due := time.Date(p.DueDate.Year(), p.DueDate.Month(), p.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	until := int(due.Sub(today).Hours() / 24)

	r := Reminder{Payment: p, AsOf: today}
	switch {
	case until > 0 && until <= leadDays:
		r.Kind, r.Days = KindUpcoming, until
	case until == 0:
		r.Kind = KindDue
	case until < 0:
		late := -until
		r.Kind, r.Days = KindOverdue, late
		for _, m := range OverdueMilestones {
			if m <= late {
				r.Milestone = m
			}
		}
	default:
		return Reminder{}, false
	}
	return r, true
}

// Key identifies the reminder for idempotency: the payment, the condition and its due date.
func (r Reminder) Key() string {
	parts := []string{"payment", r.Payment.ID, string(r.Kind)}
	if r.Kind == KindOverdue {
		parts = append(parts, fmt.Sprint(r.Milestone))
	}
	parts = append(parts, r.Payment.DueDate.Format(time.DateOnly))
	return strings.Join(parts, ":")
}

func (r Reminder) notificationType() notification.Type {
	switch r.Kind {
	case KindUpcoming:
		return notification.TypePaymentReminder
	case KindDue:
		return notification.TypePaymentDue
	default:
		return notification.TypePaymentLate
	}
}

func (r Reminder) priority() notification.Priority {
	switch {
	case r.Kind == KindOverdue && r.Days >= 7:
		return notification.PriorityUrgent
	case r.Kind == KindOverdue, r.Kind == KindDue:
		return notification.PriorityHigh
	default:
		return notification.PriorityNormal
	}
}

// Request builds the notification for r.
func (r Reminder) Request() notification.CreateRequest {
	p := r.Payment
	amount := fmt.Sprintf("$%.2f", p.Amount)
	dueOn := p.DueDate.Format(time.DateOnly)
	where := ""
	if p.Property != "" {
		where = " for " + p.Property
	}

	var title, message string
	switch r.Kind {
	case KindUpcoming:
		title = "Upcoming rent payment"
		message = fmt.Sprintf("Your payment of %s%s is due on %s, in %d %s.", amount, where, dueOn, r.Days, plural(r.Days, "day"))
	case KindDue:
		title = "Rent payment due today"
		message = fmt.Sprintf("Your payment of %s%s is due today.", amount, where)
	default:
		title = "Rent payment overdue"
		message = fmt.Sprintf("Your payment of %s%s was due on %s and is %d %s late.", amount, where, dueOn, r.Days, plural(r.Days, "day"))
	}

	data, _ := json.Marshal(map[string]any{
		"payment_id":  p.ID,
		"contract_id": p.ContractID,
		"amount":      p.Amount,
		"due_date":    dueOn,
		"kind":        r.Kind,
		"days":        r.Days,
	})

	return notification.CreateRequest{
		UserID:      p.UserID,
		Type:        r.notificationType(),
		Title:       title,
		Message:     message,
		Priority:    r.priority(),
		Reference:   &notification.Reference{Type: "payment", ID: p.ID},
		Data:        data,
		ReminderKey: r.Key(),
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
