package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a business event published by the rental backend.
type EventType string

const (
	EventPaymentReceived    EventType = "payment.received"
	EventMaintenanceUpdated EventType = "maintenance.updated"
	EventContractSigned     EventType = "contract.signed"
	EventContractExpiring   EventType = "contract.expiring"
	EventExpenseCreated     EventType = "expense.created"
)

// Event is the envelope for all business events.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type PaymentEventData struct {
	PaymentID  string  `json:"payment_id"`
	ContractID string  `json:"contract_id,omitempty"`
	UserID     string  `json:"user_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency,omitempty"`
	PaidOn     string  `json:"paid_on,omitempty"`
}

type MaintenanceEventData struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Property  string `json:"property,omitempty"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	Emergency bool   `json:"emergency,omitempty"`
}

type ContractEventData struct {
	ContractID string `json:"contract_id"`
	UserID     string `json:"user_id"`
	Property   string `json:"property,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	DaysLeft   int    `json:"days_left,omitempty"`
}

type ExpenseEventData struct {
	ExpenseID   string  `json:"expense_id"`
	UserID      string  `json:"user_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency,omitempty"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
}

// NewEvent wraps data in an envelope with a fresh id.
func NewEvent(eventType EventType, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event data: %w", err)
	}
	return &Event{
		ID:        "evt_" + uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

func (e *Event) decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}
