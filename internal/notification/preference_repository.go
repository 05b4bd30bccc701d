package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sapliy/rental-ecosystem/pkg/database"
)

// PreferenceStore persists per-user delivery preferences.
type PreferenceStore interface {
	// Get never fails on a missing record; it returns the default preference instead.
	Get(ctx context.Context, userID string) (*Preference, error)
	Upsert(ctx context.Context, p *Preference) error
}

type PreferenceRepository struct {
	db database.DB
}

func NewPreferenceRepository(db database.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*Preference, error) {
	query := `
		SELECT user_id, channels, quiet_hours_start, quiet_hours_end, timezone, updated_at
		FROM notification_preferences WHERE user_id = $1
	`
	var (
		p          Preference
		channels   []byte
		start, end sql.NullInt32
		tz         sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &channels, &start, &end, &tz, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPreference(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &p.Channels); err != nil {
			return nil, fmt.Errorf("invalid channels column for user %s: %w", userID, err)
		}
	}
	if start.Valid {
		p.QuietHoursStart = intPtr(int(start.Int32))
	}
	if end.Valid {
		p.QuietHoursEnd = intPtr(int(end.Int32))
	}
	p.Timezone = tz.String
	p.Normalize()
	return &p, nil
}

func (r *PreferenceRepository) Upsert(ctx context.Context, p *Preference) error {
	channels, err := json.Marshal(p.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode channels: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	var tz sql.NullString
	if p.Timezone != "" {
		tz = sql.NullString{String: p.Timezone, Valid: true}
	}

	query := `
		INSERT INTO notification_preferences (user_id, channels, quiet_hours_start, quiet_hours_end, timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			channels = EXCLUDED.channels,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, query, p.UserID, channels, nullInt(p.QuietHoursStart), nullInt(p.QuietHoursEnd), tz, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
