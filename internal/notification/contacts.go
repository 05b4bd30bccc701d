package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sapliy/rental-ecosystem/pkg/database"
)

// ErrNoContact is returned when a user has no address for a channel.
var ErrNoContact = errors.New("no contact address")

// Contact holds the addresses used by the email and sms senders.
type Contact struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

type ContactDirectory interface {
	Lookup(ctx context.Context, userID string) (*Contact, error)
}

// UserDirectory reads contacts from the users table owned by the main backend.
type UserDirectory struct {
	db database.DB
}

func NewUserDirectory(db database.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) Lookup(ctx context.Context, userID string) (*Contact, error) {
	query := `
		SELECT id::text, COALESCE(full_name, ''), COALESCE(email, ''), COALESCE(phone, '')
		FROM users WHERE id::text = $1 AND is_active
	`
	var c Contact
	err := d.db.QueryRowContext(ctx, query, userID).Scan(&c.UserID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNoContact, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up contact: %w", err)
	}
	return &c, nil
}
