package notification

import (
	"fmt"
	"time"

	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// Policy decides which channels may carry a notification.
type Policy struct {
	defaultLoc *time.Location
	logger     *observability.Logger
}

// NewPolicy builds a policy whose quiet hours are evaluated in defaultTZ when a user
// has no timezone of their own.
func NewPolicy(defaultTZ string, logger *observability.Logger) (*Policy, error) {
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	loc, err := time.LoadLocation(defaultTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid default timezone %q: %w", defaultTZ, err)
	}
	return &Policy{defaultLoc: loc, logger: logger}, nil
}

// DefaultLocation is the zone used for users without a timezone.
func (p *Policy) DefaultLocation() *time.Location {
	return p.defaultLoc
}

// Eligible returns the target channels of n that pref allows at now.
func (p *Policy) Eligible(n *Notification, pref *Preference, now time.Time) []Channel {
	if n.Priority != PriorityUrgent && p.InQuietHours(pref, now) {
		return nil
	}

	eligible := make([]Channel, 0, len(Channels))
	for _, c := range n.TargetChannels() {
		if pref.Enabled(n.Type, c) {
			eligible = append(eligible, c)
		}
	}
	return eligible
}

// InQuietHours reports whether now falls inside the user's quiet window, in the user's zone.
func (p *Policy) InQuietHours(pref *Preference, now time.Time) bool {
	if !pref.HasQuietHours() {
		return false
	}
	return inWindow(*pref.QuietHoursStart, *pref.QuietHoursEnd, now.In(p.location(pref)).Hour())
}

func (p *Policy) location(pref *Preference) *time.Location {
	if pref.Timezone == "" {
		return p.defaultLoc
	}
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		p.logger.Warn("unknown user timezone, using default",
			"user_id", pref.UserID, "timezone", pref.Timezone, "default", p.defaultLoc.String())
		return p.defaultLoc
	}
	return loc
}

// inWindow treats start > end as a window that wraps midnight. start == end is empty.
func inWindow(start, end, hour int) bool {
	if start <= end {
		return start <= hour && hour < end
	}
	return hour >= start || hour < end
}
