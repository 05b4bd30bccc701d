package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sapliy/rental-ecosystem/internal/notification"
)

// MemoryStore is an in-memory notification.Store with the same status rules as Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]*notification.Notification
	reminders map[string]string

	// CreateErr, when set, is returned by Create.
	CreateErr error
	// MarkSentErr, when set, is returned by MarkSent.
	MarkSentErr error
	MarkSentCalls int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]*notification.Notification),
		reminders: make(map[string]string),
	}
}

func clone(n *notification.Notification) *notification.Notification {
	cp := *n
	cp.Channels = append([]notification.Channel(nil), n.Channels...)
	if n.SentAt != nil {
		t := *n.SentAt
		cp.SentAt = &t
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	if n.ReminderKey != "" {
		if _, ok := m.reminders[n.ReminderKey]; ok {
			return notification.ErrDuplicateReminder
		}
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = notification.PriorityNormal
	}
	n.Status = notification.StatusUnread
	m.items[n.ID] = clone(n)
	if n.ReminderKey != "" {
		m.reminders[n.ReminderKey] = n.ID
	}
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, userID, id string) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return nil, notification.ErrNotFound
	}
	return clone(n), nil
}

// Get returns a record regardless of owner.
func (m *MemoryStore) Get(id string) (*notification.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, false
	}
	return clone(n), true
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, opts notification.ListOptions) ([]*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.Limit <= 0 {
		opts.Limit = notification.DefaultListLimit
	}
	if opts.Limit > notification.MaxListLimit {
		opts.Limit = notification.MaxListLimit
	}

	var all []*notification.Notification
	for _, n := range m.items {
		if n.UserID != userID || (opts.UnreadOnly && n.ReadAt != nil) {
			continue
		}
		all = append(all, clone(n))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if opts.Skip >= len(all) {
		return []*notification.Notification{}, nil
	}
	all = all[opts.Skip:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (m *MemoryStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkSentCalls++
	if m.MarkSentErr != nil {
		return m.MarkSentErr
	}
	n, ok := m.items[id]
	if !ok {
		return notification.ErrNotFound
	}
	if n.SentAt == nil {
		n.SentAt = &at
	}
	n.Status = n.Status.Advance(notification.StatusSent)
	return nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, userID, id string, at time.Time) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return nil, notification.ErrNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	n.Status = notification.StatusRead
	return clone(n), nil
}

func (m *MemoryStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.items {
		if n.UserID == userID && n.ReadAt == nil {
			t := at
			n.ReadAt = &t
			n.Status = notification.StatusRead
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return notification.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) HasReminder(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.reminders[key]
	return ok, nil
}

func (m *MemoryStore) ListUnsent(ctx context.Context, since, before time.Time, limit int) ([]*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.items {
		if n.SentAt == nil && n.ReadAt == nil && !n.CreatedAt.Before(since) && n.CreatedAt.Before(before) {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryPreferenceStore is an in-memory notification.PreferenceStore.
type MemoryPreferenceStore struct {
	mu    sync.Mutex
	prefs map[string]*notification.Preference

	GetErr  error
	Upserts int
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[string]*notification.Preference)}
}

// Put stores p as-is, without normalization.
func (m *MemoryPreferenceStore) Put(p *notification.Preference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = p.Clone()
}

func (m *MemoryPreferenceStore) Get(ctx context.Context, userID string) (*notification.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	p, ok := m.prefs[userID]
	if !ok {
		return notification.DefaultPreference(userID), nil
	}
	cp := p.Clone()
	cp.Normalize()
	return cp, nil
}

func (m *MemoryPreferenceStore) Upsert(ctx context.Context, p *notification.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upserts++
	p.UpdatedAt = time.Now().UTC()
	m.prefs[p.UserID] = p.Clone()
	return nil
}
