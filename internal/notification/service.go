package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sapliy/rental-ecosystem/internal/realtime"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// ErrInvalidRequest wraps CreateRequest validation failures.
var ErrInvalidRequest = errors.New("invalid notification request")

// EventPublisher is implemented by *messaging.KafkaProducer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// DeliveryEvent is published after every dispatch.
type DeliveryEvent struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Type           Type      `json:"type"`
	Succeeded      []Channel `json:"succeeded"`
	Failed         []Channel `json:"failed"`
	Suppressed     bool      `json:"suppressed,omitempty"`
	Sent           bool      `json:"sent"`
	At             time.Time `json:"at"`
}

type ServiceConfig struct {
	// RetryWindow is how far back RetryUnsent looks for undelivered notifications.
	RetryWindow time.Duration
	// RetryMinAge skips notifications young enough to still be in their first dispatch.
	RetryMinAge time.Duration
	RetryBatch  int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RetryWindow: 24 * time.Hour,
		RetryMinAge: time.Minute,
		RetryBatch:  500,
	}
}

// Service creates notifications and drives their delivery.
type Service struct {
	store      Store
	prefs      PreferenceStore
	cache      Cache
	policy     *Policy
	dispatcher *Dispatcher
	events     EventPublisher
	pusher     Pusher
	validate   *validator.Validate
	cfg        ServiceConfig
	logger     *observability.Logger
	now        func() time.Time
}

type ServiceOption func(*Service)

// WithCache enables the read-through cache. The default is NopCache.
func WithCache(c Cache) ServiceOption { return func(s *Service) { s.cache = c } }

// WithEventPublisher publishes a DeliveryEvent after each dispatch.
func WithEventPublisher(p EventPublisher) ServiceOption { return func(s *Service) { s.events = p } }

// WithUnreadPusher pushes unread-count updates to live sessions after reads.
func WithUnreadPusher(p Pusher) ServiceOption { return func(s *Service) { s.pusher = p } }

func WithConfig(cfg ServiceConfig) ServiceOption { return func(s *Service) { s.cfg = cfg } }

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func NewService(store Store, prefs PreferenceStore, policy *Policy, dispatcher *Dispatcher, logger *observability.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		prefs:      prefs,
		cache:      NopCache{},
		policy:     policy,
		dispatcher: dispatcher,
		validate:   validator.New(),
		cfg:        DefaultServiceConfig(),
		logger:     logger.With("component", "notification_service"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks req without persisting anything.
func (s *Service) Validate(req *CreateRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, req.Type)
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, req.Priority)
	}
	if len(req.Data) > 0 && !json.Valid(req.Data) {
		return fmt.Errorf("%w: data is not valid JSON", ErrInvalidRequest)
	}
	return nil
}

// Notify persists a notification and dispatches it to the channels the recipient allows.
// A request carrying a reminder key that was already used returns ErrDuplicateReminder.
// When persistence fails after the record was created, the record is returned with the error.
func (s *Service) Notify(ctx context.Context, req CreateRequest) (*Notification, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	if req.ReminderKey != "" {
		seen, err := s.store.HasReminder(ctx, req.ReminderKey)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, ErrDuplicateReminder
		}
	}

	n := &Notification{
		UserID:      req.UserID,
		Type:        req.Type,
		Title:       req.Title,
		Message:     req.Message,
		Priority:    req.Priority,
		Channels:    req.Channels,
		Reference:   req.Reference,
		Data:        req.Data,
		ReminderKey: req.ReminderKey,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	s.cache.InvalidateUnreadCount(ctx, n.UserID)

	if err := s.deliver(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// RetryUnsent re-dispatches recent notifications no channel has delivered yet, such as
// those held back by quiet hours. It returns how many were delivered.
func (s *Service) RetryUnsent(ctx context.Context) (int, error) {
	now := s.now()
	pending, err := s.store.ListUnsent(ctx, now.Add(-s.cfg.RetryWindow), now.Add(-s.cfg.RetryMinAge), s.cfg.RetryBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := s.deliver(ctx, n); err != nil {
			s.logger.Error("retry failed", "notification_id", n.ID, "error", err)
			continue
		}
		if n.SentAt != nil {
			sent++
		}
	}
	if len(pending) > 0 {
		s.logger.Info("retried unsent notifications", "pending", len(pending), "sent", sent)
	}
	return sent, nil
}

func (s *Service) deliver(ctx context.Context, n *Notification) error {
	logger := s.logger.WithContext(ctx).With("notification_id", n.ID, "user_id", n.UserID)

	pref, err := s.GetPreferences(ctx, n.UserID)
	if err != nil {
		return err
	}

	now := s.now()
	eligible := s.policy.Eligible(n, pref, now)
	if len(eligible) == 0 {
		reason := "preferences"
		if n.Priority != PriorityUrgent && s.policy.InQuietHours(pref, now) {
			reason = "quiet_hours"
		}
		SuppressedTotal.WithLabelValues(reason).Inc()
		logger.Info("no eligible channel", "reason", reason)
		s.publish(ctx, n, Result{}, true)
		return nil
	}

	res := s.dispatcher.Dispatch(ctx, n, eligible)
	if res.AnySucceeded() {
		at := s.now().UTC()
		if err := s.store.MarkSent(ctx, n.ID, at); err != nil {
			return err
		}
		if n.SentAt == nil {
			n.SentAt = &at
		}
		n.Status = n.Status.Advance(StatusSent)
	}
	logger.Info("notification dispatched", "succeeded", res.Succeeded, "failed", res.FailedChannels())
	s.publish(ctx, n, res, false)
	return nil
}

func (s *Service) publish(ctx context.Context, n *Notification, res Result, suppressed bool) {
	if s.events == nil {
		return
	}
	evt := DeliveryEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Succeeded:      res.Succeeded,
		Failed:         res.FailedChannels(),
		Suppressed:     suppressed,
		Sent:           res.AnySucceeded(),
		At:             s.now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("failed to encode delivery event", "notification_id", n.ID, "error", err)
		return
	}
	if err := s.events.Publish(ctx, n.UserID, data); err != nil {
		s.logger.Warn("failed to publish delivery event", "notification_id", n.ID, "error", err)
	}
}

func (s *Service) List(ctx context.Context, userID string, opts ListOptions) ([]*Notification, error) {
	return s.store.ListByUser(ctx, userID, opts)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	if n, ok := s.cache.GetUnreadCount(ctx, userID); ok {
		return n, nil
	}
	n, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.SetUnreadCount(ctx, userID, n)
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (*Notification, error) {
	n, err := s.store.MarkRead(ctx, userID, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateUnreadCount(ctx, userID)
	s.pushUnreadCount(ctx, userID)
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.cache.InvalidateUnreadCount(ctx, userID)
	s.pushUnreadCount(ctx, userID)
	return n, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.cache.InvalidateUnreadCount(ctx, userID)
	return nil
}

// UnreadCountMessage builds the system envelope sent to sessions when the count changes.
func UnreadCountMessage(count int) realtime.Envelope {
	return realtime.System("unread_count", "", map[string]any{"count": count})
}

func (s *Service) pushUnreadCount(ctx context.Context, userID string) {
	if s.pusher == nil {
		return
	}
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to refresh unread count", "user_id", userID, "error", err)
		return
	}
	s.pusher.Push(ctx, userID, UnreadCountMessage(count))
}

// GetPreferences returns the user's normalized preferences, or the defaults.
func (s *Service) GetPreferences(ctx context.Context, userID string) (*Preference, error) {
	if p, ok := s.cache.GetPreference(ctx, userID); ok {
		return p, nil
	}
	p, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Normalize()
	s.cache.SetPreference(ctx, p)
	return p, nil
}

// UpdatePreferences merges u into the stored preferences. Invalid results are rejected
// before anything is written.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, u PreferenceUpdate) (*Preference, error) {
	current, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.UserID = userID
	next.Apply(u)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Normalize()

	if err := s.prefs.Upsert(ctx, next); err != nil {
		return nil, err
	}
	s.cache.InvalidatePreference(ctx, userID)
	return next, nil
}

func (s *Service) ResetPreferences(ctx context.Context, userID string) (*Preference, error) {
	p := DefaultPreference(userID)
	if err := s.prefs.Upsert(ctx, p); err != nil {
		return nil, err
	}
	s.cache.InvalidatePreference(ctx, userID)
	return p, nil
}
