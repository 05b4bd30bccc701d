package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sapliy/rental-ecosystem/pkg/database"
)

// Store persists notification records. Lookups scoped by user return ErrNotFound for
// records owned by someone else.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, userID, id string) (*Notification, error)
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkRead(ctx context.Context, userID, id string, at time.Time) (*Notification, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
	HasReminder(ctx context.Context, key string) (bool, error)
	ListUnsent(ctx context.Context, since, before time.Time, limit int) ([]*Notification, error)
}

// Repository is the Postgres Store.
type Repository struct {
	db database.DB
}

func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, user_id, type, title, message, priority, status, channels,
	reference_type, reference_id, data, reminder_key, created_at, sent_at, read_at`

// Create inserts n, assigning its id, creation time and initial status.
func (r *Repository) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	n.Status = StatusUnread

	channels, err := json.Marshal(channelsOrEmpty(n.Channels))
	if err != nil {
		return fmt.Errorf("failed to encode channels: %w", err)
	}

	var refType, refID, reminderKey sql.NullString
	if n.Reference != nil {
		refType = sql.NullString{String: n.Reference.Type, Valid: true}
		refID = sql.NullString{String: n.Reference.ID, Valid: true}
	}
	if n.ReminderKey != "" {
		reminderKey = sql.NullString{String: n.ReminderKey, Valid: true}
	}

	query := `
		INSERT INTO notifications (id, user_id, type, title, message, priority, status, channels,
			reference_type, reference_id, data, reminder_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Priority, n.Status, channels,
		refType, refID, nullJSON(n.Data), reminderKey, n.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) && n.ReminderKey != "" {
			return ErrDuplicateReminder
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// validID reports whether id can match the uuid column. Anything else cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *Repository) GetByID(ctx context.Context, userID, id string) (*Notification, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListByUser returns the user's notifications, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*Notification, error) {
	opts = opts.normalized()

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if opts.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, opts.Limit, opts.Skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return collect(rows)
}

// MarkSent records the first successful delivery. sent_at is written once and a read
// notification keeps its status.
func (r *Repository) MarkSent(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return ErrNotFound
	}
	query := `
		UPDATE notifications
		SET sent_at = COALESCE(sent_at, $2),
		    status = CASE WHEN status = 'unread' THEN 'sent' ELSE status END
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead sets status read. read_at keeps its first value.
func (r *Repository) MarkRead(ctx context.Context, userID, id string, at time.Time) (*Notification, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `
		UPDATE notifications
		SET status = 'read', read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id, userID, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n, nil
}

func (r *Repository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `UPDATE notifications SET status = 'read', read_at = $2 WHERE user_id = $1 AND read_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count updated notifications: %w", err)
	}
	return n, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadCount counts notifications the user has not read, whether or not they were sent.
func (r *Repository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *Repository) HasReminder(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE reminder_key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reminder key: %w", err)
	}
	return exists, nil
}

// ListUnsent returns notifications created in [since, before) that no channel has delivered yet.
func (r *Repository) ListUnsent(ctx context.Context, since, before time.Time, limit int) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE sent_at IS NULL AND read_at IS NULL AND created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, since, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsent notifications: %w", err)
	}
	return collect(rows)
}

func collect(rows database.Rows) ([]*Notification, error) {
	defer rows.Close()

	out := make([]*Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

func scanNotification(row database.Row) (*Notification, error) {
	var (
		n                           Notification
		channels, data              []byte
		refType, refID, reminderKey sql.NullString
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Priority, &n.Status, &channels,
		&refType, &refID, &data, &reminderKey, &n.CreatedAt, &n.SentAt, &n.ReadAt)
	if err != nil {
		return nil, err
	}

	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &n.Channels); err != nil {
			return nil, fmt.Errorf("invalid channels column: %w", err)
		}
	}
	if refType.Valid && refID.Valid {
		n.Reference = &Reference{Type: refType.String, ID: refID.String}
	}
	if len(data) > 0 {
		n.Data = json.RawMessage(data)
	}
	n.ReminderKey = reminderKey.String
	return &n, nil
}

func channelsOrEmpty(c []Channel) []Channel {
	if c == nil {
		return []Channel{}
	}
	return c
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
