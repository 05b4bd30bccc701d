package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrDenied is returned by Middleware.Check when the engine refuses an action.
var ErrDenied = errors.New("denied")

// Action represents an action that can be policy-controlled
type Action string

const (
	ActionNotificationCreate    Action = "notification.create"
	ActionNotificationBroadcast Action = "notification.broadcast"
	ActionReminderRun           Action = "reminder.run"
)

// Role represents a user role
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLandlord Role = "landlord"
	RoleTenant   Role = "tenant"
	// RoleService is assumed by other platform services calling with an API key.
	RoleService Role = "service"
)

// PolicyContext contains the context for policy evaluation
type PolicyContext struct {
	UserID string
	Roles  []Role
	Action Action
	// TargetUserID is the user an action is performed on behalf of, if any.
	TargetUserID string
}

// self reports whether the caller acts on their own account.
func (p *PolicyContext) self() bool {
	return p.TargetUserID == "" || p.TargetUserID == p.UserID
}

// PolicyResult contains the result of a policy check
type PolicyResult struct {
	Allowed bool
	Reason  string
	Rules   []string
}

// PolicyEngine is the interface for policy evaluation
type PolicyEngine interface {
	Check(ctx context.Context, pctx *PolicyContext) (*PolicyResult, error)
}

// HardcodedPolicyEngine evaluates the built-in role matrix.
type HardcodedPolicyEngine struct{}

func NewHardcodedPolicyEngine() *HardcodedPolicyEngine {
	return &HardcodedPolicyEngine{}
}

// Check evaluates hardcoded policies
func (e *HardcodedPolicyEngine) Check(ctx context.Context, pctx *PolicyContext) (*PolicyResult, error) {
	result := &PolicyResult{Rules: make([]string, 0)}

	if pctx.Action == ActionNotificationCreate && pctx.UserID != "" && pctx.self() {
		result.Allowed = true
		result.Reason = "allowed: own account"
		result.Rules = append(result.Rules, "self")
		return result, nil
	}

	for _, role := range pctx.Roles {
		if e.roleAllowsAction(role, pctx.Action) {
			result.Allowed = true
			result.Reason = fmt.Sprintf("allowed by role: %s", role)
			result.Rules = append(result.Rules, fmt.Sprintf("role:%s", role))
			return result, nil
		}
	}

	result.Reason = "no matching policy found"
	return result, nil
}

// permissions lists what each non-admin role may do for other users.
var permissions = map[Role][]Action{
	RoleLandlord: {ActionNotificationCreate},
	RoleService:  {ActionNotificationCreate, ActionReminderRun},
	RoleTenant:   {},
}

func (e *HardcodedPolicyEngine) roleAllowsAction(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return slices.Contains(permissions[role], action)
}

// RequireRole checks that the caller has required, or is an admin.
func RequireRole(pctx *PolicyContext, required Role) error {
	for _, role := range pctx.Roles {
		if role == required || role == RoleAdmin {
			return nil
		}
	}
	return fmt.Errorf("role %s required", required)
}

// RolesFrom converts a token role claim into roles. An empty claim means tenant.
func RolesFrom(claim string) []Role {
	if claim == "" {
		return []Role{RoleTenant}
	}
	return []Role{Role(claim)}
}

// Middleware runs checks against an engine and records each decision.
type Middleware struct {
	engine PolicyEngine
	audit  func(AuditLog)
}

func NewMiddleware(engine PolicyEngine, audit func(AuditLog)) *Middleware {
	return &Middleware{engine: engine, audit: audit}
}

// Check performs a policy check and returns an error wrapping ErrDenied if refused.
func (m *Middleware) Check(ctx context.Context, pctx *PolicyContext) error {
	result, err := m.engine.Check(ctx, pctx)
	if err != nil {
		return fmt.Errorf("policy check failed: %w", err)
	}

	if m.audit != nil {
		m.audit(AuditLog{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			UserID:    pctx.UserID,
			Action:    pctx.Action,
			Target:    pctx.TargetUserID,
			Allowed:   result.Allowed,
			Reason:    result.Reason,
			Rules:     result.Rules,
		})
	}

	if !result.Allowed {
		return fmt.Errorf("%w: %s", ErrDenied, result.Reason)
	}
	return nil
}

// AuditLog is one policy decision.
type AuditLog struct {
	Timestamp string   `json:"timestamp"`
	UserID    string   `json:"userId"`
	Action    Action   `json:"action"`
	Target    string   `json:"target,omitempty"`
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason"`
	Rules     []string `json:"rules,omitempty"`
}
