package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sapliy/rental-ecosystem/internal/realtime"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// Sender delivers a notification over one channel. A nil error means delivered.
type Sender interface {
	Channel() Channel
	Attempt(ctx context.Context, n *Notification) error
}

// Pusher is implemented by *realtime.Registry.
type Pusher interface {
	Push(ctx context.Context, userID string, msg realtime.Envelope) int
}

// Publisher is implemented by *messaging.RabbitMQClient.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// PushSender fans a notification out to the user's live connections.
type PushSender struct {
	pusher Pusher
	logger *observability.Logger
}

func NewPushSender(p Pusher, logger *observability.Logger) *PushSender {
	return &PushSender{pusher: p, logger: logger}
}

func (s *PushSender) Channel() Channel { return Push }

// Attempt succeeds even when the user has no open connection; the record stays in the inbox.
func (s *PushSender) Attempt(ctx context.Context, n *Notification) error {
	delivered := s.pusher.Push(ctx, n.UserID, realtime.Notification(n))
	s.logger.Debug("push fan-out", "notification_id", n.ID, "user_id", n.UserID, "connections", delivered)
	return nil
}

// SMSQueue is consumed by the SMS gateway.
const SMSQueue = "sms.notifications"

// SMSTask is the message published to SMSQueue.
type SMSTask struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	To             string    `json:"to"`
	Body           string    `json:"body"`
	Priority       Priority  `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
}

// SMSSender hands rendered messages to the SMS gateway queue.
type SMSSender struct {
	publisher Publisher
	contacts  ContactDirectory
}

func NewSMSSender(p Publisher, contacts ContactDirectory) *SMSSender {
	return &SMSSender{publisher: p, contacts: contacts}
}

func (s *SMSSender) Channel() Channel { return SMS }

func (s *SMSSender) Attempt(ctx context.Context, n *Notification) error {
	contact, err := s.contacts.Lookup(ctx, n.UserID)
	if err != nil {
		return err
	}
	if contact.Phone == "" {
		return fmt.Errorf("%w: user %s has no phone number", ErrNoContact, n.UserID)
	}

	body, err := RenderSMS(n)
	if err != nil {
		return err
	}

	task := SMSTask{
		ID:             "sms_" + n.ID,
		NotificationID: n.ID,
		UserID:         n.UserID,
		To:             contact.Phone,
		Body:           body,
		Priority:       n.Priority,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode sms task: %w", err)
	}
	if err := s.publisher.Publish(ctx, SMSQueue, data); err != nil {
		return fmt.Errorf("failed to queue sms: %w", err)
	}
	return nil
}
