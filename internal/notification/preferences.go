package notification

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPreference wraps every preference validation failure.
var ErrInvalidPreference = errors.New("invalid preference")

// Matrix is the per-type, per-channel enablement table.
type Matrix map[Type]map[Channel]bool

// Preference is a user's delivery settings. A missing quiet-hours bound disables quiet hours.
type Preference struct {
	UserID          string    `json:"user_id"`
	Channels        Matrix    `json:"channels"`
	QuietHoursStart *int      `json:"quiet_hours_start"`
	QuietHoursEnd   *int      `json:"quiet_hours_end"`
	Timezone        string    `json:"timezone,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultPreference enables every channel for every type with no quiet hours.
func DefaultPreference(userID string) *Preference {
	p := &Preference{UserID: userID}
	p.Normalize()
	return p
}

// Normalize fills every known type and channel, keeping explicit values.
func (p *Preference) Normalize() {
	if p.Channels == nil {
		p.Channels = make(Matrix, len(Types))
	}
	for _, t := range Types {
		row, ok := p.Channels[t]
		if !ok || row == nil {
			row = make(map[Channel]bool, len(Channels))
			p.Channels[t] = row
		}
		for _, c := range Channels {
			if _, ok := row[c]; !ok {
				row[c] = true
			}
		}
	}
}

// Enabled reports whether c is on for t. Absent entries count as enabled.
func (p *Preference) Enabled(t Type, c Channel) bool {
	if p == nil || p.Channels == nil {
		return true
	}
	row, ok := p.Channels[t]
	if !ok {
		return true
	}
	enabled, ok := row[c]
	if !ok {
		return true
	}
	return enabled
}

// HasQuietHours reports whether both bounds are set.
func (p *Preference) HasQuietHours() bool {
	return p != nil && p.QuietHoursStart != nil && p.QuietHoursEnd != nil
}

// Validate rejects unknown keys, out-of-range hours and unknown timezones.
func (p *Preference) Validate() error {
	for t, row := range p.Channels {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown notification type %q", ErrInvalidPreference, t)
		}
		for c := range row {
			if !c.Valid() {
				return fmt.Errorf("%w: unknown channel %q", ErrInvalidPreference, c)
			}
		}
	}
	for _, h := range []*int{p.QuietHoursStart, p.QuietHoursEnd} {
		if h != nil && (*h < 0 || *h > 23) {
			return fmt.Errorf("%w: quiet hours must be between 0 and 23", ErrInvalidPreference)
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidPreference, p.Timezone)
		}
	}
	return nil
}

// PreferenceUpdate is a partial update. Nil fields are left unchanged.
type PreferenceUpdate struct {
	Channels        Matrix  `json:"channels,omitempty"`
	QuietHoursStart *int    `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *int    `json:"quiet_hours_end,omitempty"`
	ClearQuietHours bool    `json:"clear_quiet_hours,omitempty"`
	Timezone        *string `json:"timezone,omitempty"`
}

// Apply merges u into p. Each type row is merged channel by channel.
func (p *Preference) Apply(u PreferenceUpdate) {
	if p.Channels == nil {
		p.Channels = make(Matrix)
	}
	for t, row := range u.Channels {
		dst, ok := p.Channels[t]
		if !ok || dst == nil {
			dst = make(map[Channel]bool, len(row))
			p.Channels[t] = dst
		}
		for c, enabled := range row {
			dst[c] = enabled
		}
	}
	if u.ClearQuietHours {
		p.QuietHoursStart, p.QuietHoursEnd = nil, nil
	}
	if u.QuietHoursStart != nil {
		p.QuietHoursStart = intPtr(*u.QuietHoursStart)
	}
	if u.QuietHoursEnd != nil {
		p.QuietHoursEnd = intPtr(*u.QuietHoursEnd)
	}
	if u.Timezone != nil {
		p.Timezone = *u.Timezone
	}
}

// Clone returns a deep copy.
func (p *Preference) Clone() *Preference {
	cp := *p
	cp.Channels = make(Matrix, len(p.Channels))
	for t, row := range p.Channels {
		r := make(map[Channel]bool, len(row))
		for c, v := range row {
			r[c] = v
		}
		cp.Channels[t] = r
	}
	if p.QuietHoursStart != nil {
		cp.QuietHoursStart = intPtr(*p.QuietHoursStart)
	}
	if p.QuietHoursEnd != nil {
		cp.QuietHoursEnd = intPtr(*p.QuietHoursEnd)
	}
	return &cp
}

func intPtr(v int) *int { return &v }
