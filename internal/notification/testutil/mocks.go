package testutil

import (
	"context"
	"sync"

	"github.com/sapliy/rental-ecosystem/internal/notification"
	"github.com/sapliy/rental-ecosystem/internal/realtime"
)

type MockSender struct {
	ChannelValue notification.Channel
	AttemptFunc  func(ctx context.Context, n *notification.Notification) error

	mu       sync.Mutex
	Attempts int
}

func (m *MockSender) Channel() notification.Channel { return m.ChannelValue }

func (m *MockSender) Attempt(ctx context.Context, n *notification.Notification) error {
	m.mu.Lock()
	m.Attempts++
	m.mu.Unlock()
	if m.AttemptFunc == nil {
		return nil
	}
	return m.AttemptFunc(ctx, n)
}

// AttemptCount is safe to call while attempts are running.
func (m *MockSender) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Attempts
}

type MockPusher struct {
	PushFunc func(ctx context.Context, userID string, msg realtime.Envelope) int

	mu     sync.Mutex
	Pushed []realtime.Envelope
}

func (m *MockPusher) Push(ctx context.Context, userID string, msg realtime.Envelope) int {
	m.mu.Lock()
	m.Pushed = append(m.Pushed, msg)
	m.mu.Unlock()
	if m.PushFunc == nil {
		return 0
	}
	return m.PushFunc(ctx, userID, msg)
}

// Message is one call to a MockPublisher.
type Message struct {
	Topic string
	Body  []byte
}

// MockPublisher implements both notification.Publisher and notification.EventPublisher.
type MockPublisher struct {
	Err error

	mu       sync.Mutex
	Messages []Message
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, Message{Topic: topic, Body: body})
	return nil
}

func (m *MockPublisher) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.Messages...)
}

type MockContacts struct {
	LookupFunc func(ctx context.Context, userID string) (*notification.Contact, error)
}

func (m *MockContacts) Lookup(ctx context.Context, userID string) (*notification.Contact, error) {
	return m.LookupFunc(ctx, userID)
}

type MockNotifier struct {
	NotifyFunc func(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error)

	mu       sync.Mutex
	Requests []notification.CreateRequest
}

func (m *MockNotifier) Notify(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.NotifyFunc == nil {
		return &notification.Notification{ID: "n-1", UserID: req.UserID, Type: req.Type}, nil
	}
	return m.NotifyFunc(ctx, req)
}

// MemoryIdempotency is an in-memory notification.Idempotency.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]struct{})}
}

func (m *MemoryIdempotency) Claim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *MemoryIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
