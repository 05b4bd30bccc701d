package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// Notifier is implemented by *Service.
type Notifier interface {
	Notify(ctx context.Context, req CreateRequest) (*Notification, error)
}

// RoutingRule decides how a business event becomes a notification.
type RoutingRule struct {
	Type     Type
	Priority Priority
	// Channels restricts delivery. Empty means every channel the user allows.
	Channels []Channel
}

// DefaultRoutingRules covers every event the router understands.
var DefaultRoutingRules = map[EventType]RoutingRule{
	EventPaymentReceived:    {Type: TypePaymentReceived, Priority: PriorityNormal, Channels: []Channel{Push, Email}},
	EventMaintenanceUpdated: {Type: TypeMaintenanceUpdate, Priority: PriorityNormal},
	EventContractSigned:     {Type: TypeContractUpdate, Priority: PriorityNormal, Channels: []Channel{Push, Email}},
	EventContractExpiring:   {Type: TypeContractExpiring, Priority: PriorityHigh},
	EventExpenseCreated:     {Type: TypeExpenseUpdate, Priority: PriorityLow, Channels: []Channel{Push}},
}

// EventRouter turns business events into notifications.
type EventRouter struct {
	notifier Notifier
	rules    map[EventType]RoutingRule
	logger   *observability.Logger
}

func NewEventRouter(n Notifier, logger *observability.Logger) *EventRouter {
	return &EventRouter{
		notifier: n,
		rules:    DefaultRoutingRules,
		logger:   logger.With("component", "event_router"),
	}
}

// HandleMessage is a KafkaConsumer handler.
func (r *EventRouter) HandleMessage(ctx context.Context, _ string, value []byte) error {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	_, err := r.Route(ctx, &event)
	return err
}

// Route builds and sends the notification for event. Events without a rule are ignored
// and return a nil notification.
func (r *EventRouter) Route(ctx context.Context, event *Event) (*Notification, error) {
	rule, ok := r.rules[event.Type]
	if !ok {
		r.logger.Debug("no routing rule for event", "event_id", event.ID, "event_type", event.Type)
		return nil, nil
	}

	req, err := r.buildRequest(event, rule)
	if err != nil {
		return nil, err
	}

	n, err := r.notifier.Notify(ctx, *req)
	if errors.Is(err, ErrDuplicateReminder) {
		return nil, nil
	}
	if err != nil {
		return n, fmt.Errorf("failed to notify for event %s: %w", event.ID, err)
	}
	return n, nil
}

func (r *EventRouter) buildRequest(event *Event, rule RoutingRule) (*CreateRequest, error) {
	req := &CreateRequest{
		Type:     rule.Type,
		Priority: rule.Priority,
		Channels: rule.Channels,
		Data:     event.Data,
	}

	switch event.Type {
	case EventPaymentReceived:
		var d PaymentEventData
		if err := event.decode(&d); err != nil {
			return nil, err
		}
		req.UserID = d.UserID
		req.Title = "Payment received"
		req.Message = fmt.Sprintf("We received your payment of %s.", formatAmount(d.Amount, d.Currency))
		if d.PaidOn != "" {
			req.Message = fmt.Sprintf("We received your payment of %s on %s.", formatAmount(d.Amount, d.Currency), d.PaidOn)
		}
		req.Reference = &Reference{Type: "payment", ID: d.PaymentID}

	case EventMaintenanceUpdated:
		var d MaintenanceEventData
		if err := event.decode(&d); err != nil {
			return nil, err
		}
		req.UserID = d.UserID
		req.Title = "Maintenance request " + humanize(d.Status)
		req.Message = fmt.Sprintf("Your maintenance request is now %s.", humanize(d.Status))
		if d.Property != "" {
			req.Message = fmt.Sprintf("Your maintenance request for %s is now %s.", d.Property, humanize(d.Status))
		}
		if d.Note != "" {
			req.Message += "\n\n" + d.Note
		}
		if d.Emergency {
			req.Priority = PriorityUrgent
		}
		req.Reference = &Reference{Type: "maintenance_request", ID: d.RequestID}

	case EventContractSigned:
		var d ContractEventData
		if err := event.decode(&d); err != nil {
			return nil, err
		}
		req.UserID = d.UserID
		req.Title = "Contract signed"
		req.Message = "Your rental contract has been signed."
		if d.StartDate != "" && d.EndDate != "" {
			req.Message = fmt.Sprintf("Your rental contract runs from %s to %s.", d.StartDate, d.EndDate)
		}
		req.Reference = &Reference{Type: "contract", ID: d.ContractID}

	case EventContractExpiring:
		var d ContractEventData
		if err := event.decode(&d); err != nil {
			return nil, err
		}
		req.UserID = d.UserID
		req.Title = "Contract expiring soon"
		req.Message = fmt.Sprintf("Your rental contract ends on %s.", d.EndDate)
		if d.DaysLeft > 0 {
			req.Message = fmt.Sprintf("Your rental contract ends on %s, in %d days.", d.EndDate, d.DaysLeft)
		}
		if d.DaysLeft > 0 && d.DaysLeft <= 7 {
			req.Priority = PriorityUrgent
		}
		req.Reference = &Reference{Type: "contract", ID: d.ContractID}

	case EventExpenseCreated:
		var d ExpenseEventData
		if err := event.decode(&d); err != nil {
			return nil, err
		}
		req.UserID = d.UserID
		req.Title = "New expense recorded"
		req.Message = fmt.Sprintf("An expense of %s was recorded.", formatAmount(d.Amount, d.Currency))
		if d.Description != "" {
			req.Message = fmt.Sprintf("An expense of %s was recorded: %s.", formatAmount(d.Amount, d.Currency), d.Description)
		}
		req.Reference = &Reference{Type: "expense", ID: d.ExpenseID}

	default:
		return nil, fmt.Errorf("no builder for event type %s", event.Type)
	}

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: event %s has no user_id", ErrInvalidRequest, event.ID)
	}
	return req, nil
}

func formatAmount(amount float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
}

func humanize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", " ")
}
