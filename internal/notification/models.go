package notification

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a notification does not exist or belongs to another user.
	ErrNotFound = errors.New("notification not found")
	// ErrDuplicateReminder is returned when a reminder key was already used.
	ErrDuplicateReminder = errors.New("reminder already notified")
)

// Type is the business category of a notification.
type Type string

const (
	TypePaymentReminder   Type = "payment_reminder"
	TypePaymentDue        Type = "payment_due"
	TypePaymentLate       Type = "payment_late"
	TypePaymentReceived   Type = "payment_received"
	TypeMaintenanceUpdate Type = "maintenance_update"
	TypeContractUpdate    Type = "contract_update"
	TypeContractExpiring  Type = "contract_expiring"
	TypeExpenseUpdate     Type = "expense_update"
	TypeSystem            Type = "system"
)

// Types lists every notification type in display order.
var Types = []Type{
	TypePaymentReminder,
	TypePaymentDue,
	TypePaymentLate,
	TypePaymentReceived,
	TypeMaintenanceUpdate,
	TypeContractUpdate,
	TypeContractExpiring,
	TypeExpenseUpdate,
	TypeSystem,
}

func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// Channel is a delivery medium.
type Channel string

const (
	Push  Channel = "push"
	Email Channel = "email"
	SMS   Channel = "sms"
)

// Channels lists every delivery channel.
var Channels = []Channel{Push, Email, SMS}

func (c Channel) Valid() bool {
	switch c {
	case Push, Email, SMS:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Status moves forward only: unread -> sent -> read.
type Status string

const (
	StatusUnread Status = "unread"
	StatusSent   Status = "sent"
	StatusRead   Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// Advance returns the later of s and next.
func (s Status) Advance(next Status) Status {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Reference points at the business entity a notification is about.
type Reference struct {
	Type string `json:"type" validate:"required,max=50"`
	ID   string `json:"id" validate:"required,max=64"`
}

type Notification struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        Type            `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Priority    Priority        `json:"priority"`
	Status      Status          `json:"status"`
	Channels    []Channel       `json:"channels"`
	Reference   *Reference      `json:"reference,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	ReminderKey string          `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}

// TargetChannels returns the requested channels, or every channel when none were requested.
func (n *Notification) TargetChannels() []Channel {
	if len(n.Channels) == 0 {
		return Channels
	}
	return n.Channels
}

// CreateRequest is the input accepted by Service.Notify.
type CreateRequest struct {
	UserID      string          `json:"user_id" validate:"required,max=64"`
	Type        Type            `json:"type" validate:"required"`
	Title       string          `json:"title" validate:"required,max=255"`
	Message     string          `json:"message" validate:"required"`
	Priority    Priority        `json:"priority,omitempty"`
	Channels    []Channel       `json:"channels,omitempty" validate:"omitempty,dive,oneof=push email sms"`
	Reference   *Reference      `json:"reference,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	ReminderKey string          `json:"-"`
}

// ListOptions paginates ListByUser. Limit is clamped to [1, MaxListLimit].
type ListOptions struct {
	Skip       int
	Limit      int
	UnreadOnly bool
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

func (o ListOptions) normalized() ListOptions {
	if o.Skip < 0 {
		o.Skip = 0
	}
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	return o
}
