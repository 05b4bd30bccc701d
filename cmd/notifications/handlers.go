package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapliy/rental-ecosystem/internal/notification"
	"github.com/sapliy/rental-ecosystem/internal/policy"
	"github.com/sapliy/rental-ecosystem/internal/realtime"
	"github.com/sapliy/rental-ecosystem/internal/reminder"
	"github.com/sapliy/rental-ecosystem/pkg/apikey"
	"github.com/sapliy/rental-ecosystem/pkg/auth"
	"github.com/sapliy/rental-ecosystem/pkg/jsonutil"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// NotificationService is what the REST API needs from notification.Service.
type NotificationService interface {
	Notify(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error)
	List(ctx context.Context, userID string, opts notification.ListOptions) ([]*notification.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) (*notification.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	GetPreferences(ctx context.Context, userID string) (*notification.Preference, error)
	UpdatePreferences(ctx context.Context, userID string, u notification.PreferenceUpdate) (*notification.Preference, error)
	ResetPreferences(ctx context.Context, userID string) (*notification.Preference, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, msg realtime.Envelope, exclude string) int
}

type ReminderRunner interface {
	Run(ctx context.Context, asOf time.Time) (reminder.Report, error)
}

type NotificationHandler struct {
	svc          NotificationService
	broadcaster  Broadcaster
	reminders    ReminderRunner
	policy       *policy.Middleware
	apiKeySecret string
	serviceKeys  []string
	logger       *observability.Logger
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrInvalidRequest), errors.Is(err, notification.ErrInvalidPreference):
		jsonutil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, notification.ErrNotFound):
		jsonutil.WriteError(w, http.StatusNotFound, "Notification not found")
	case errors.Is(err, notification.ErrDuplicateReminder):
		jsonutil.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, policy.ErrDenied):
		jsonutil.WriteError(w, http.StatusForbidden, "Forbidden")
	default:
		jsonutil.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		jsonutil.WriteError(w, http.StatusUnauthorized, "Authentication required")
	}
	return p, ok
}

func (h *NotificationHandler) check(ctx context.Context, p auth.Principal, action policy.Action, target string) error {
	return h.policy.Check(ctx, &policy.PolicyContext{
		UserID:       p.UserID,
		Roles:        policy.RolesFrom(p.Role),
		Action:       action,
		TargetUserID: target,
	})
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := notification.ListOptions{UnreadOnly: q.Get("unread_only") == "true"}
	var err error
	if v := q.Get("skip"); v != "" {
		if opts.Skip, err = strconv.Atoi(v); err != nil || opts.Skip < 0 {
			jsonutil.WriteErrorJSON(w, "skip must be a non-negative integer")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil || opts.Limit < 1 || opts.Limit > notification.MaxListLimit {
			jsonutil.WriteErrorJSON(w, "limit must be between 1 and 100")
			return
		}
	}

	items, err := h.svc.List(r.Context(), p.UserID, opts)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("list notifications failed", "user_id", p.UserID, "error", err)
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []*notification.Notification{}
	}
	jsonutil.WriteJSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	count, err := h.svc.UnreadCount(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := h.svc.MarkRead(r.Context(), p.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	updated, err := h.svc.MarkAllRead(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), p.UserID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNotification lets a caller notify themselves, or another user when policy allows it.
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req notification.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonutil.WriteErrorJSON(w, "Invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = p.UserID
	}
	if err := h.check(r.Context(), p, policy.ActionNotificationCreate, req.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	h.create(w, r, req)
}

// CreateInternal accepts notifications from other platform services authenticated by API key.
func (h *NotificationHandler) CreateInternal(w http.ResponseWriter, r *http.Request) {
	var req notification.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonutil.WriteErrorJSON(w, "Invalid request body")
		return
	}
	h.create(w, r, req)
}

func (h *NotificationHandler) create(w http.ResponseWriter, r *http.Request, req notification.CreateRequest) {
	n, err := h.svc.Notify(r.Context(), req)
	if err != nil && n == nil {
		writeServiceError(w, err)
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("notification stored but not delivered", "notification_id", n.ID, "error", err)
	}
	jsonutil.WriteJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.check(r.Context(), p, policy.ActionNotificationBroadcast, ""); err != nil {
		writeServiceError(w, err)
		return
	}

	var req struct {
		Event   string         `json:"event"`
		Message string         `json:"message"`
		Payload map[string]any `json:"payload,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonutil.WriteErrorJSON(w, "Invalid request body")
		return
	}
	if req.Message == "" {
		jsonutil.WriteErrorJSON(w, "message is required")
		return
	}
	if req.Event == "" {
		req.Event = "announcement"
	}

	delivered := h.broadcaster.Broadcast(r.Context(), realtime.System(req.Event, req.Message, req.Payload), "")
	jsonutil.WriteJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

// RunReminders triggers a reminder scan, optionally as of a given RFC 3339 timestamp.
func (h *NotificationHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.check(r.Context(), p, policy.ActionReminderRun, ""); err != nil {
		writeServiceError(w, err)
		return
	}

	asOf := time.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonutil.WriteErrorJSON(w, "as_of must be an RFC 3339 timestamp")
			return
		}
		asOf = t
	}

	report, err := h.reminders.Run(r.Context(), asOf)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("reminder run failed", "error", err)
		writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, report)
}

func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	pref, err := h.svc.GetPreferences(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, pref)
}

func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var u notification.PreferenceUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		jsonutil.WriteErrorJSON(w, "Invalid request body")
		return
	}
	pref, err := h.svc.UpdatePreferences(r.Context(), p.UserID, u)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, pref)
}

func (h *NotificationHandler) ResetPreferences(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	pref, err := h.svc.ResetPreferences(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, pref)
}

func (h *NotificationHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"channels": notification.Channels})
}

func (h *NotificationHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"types": notification.Types})
}

// requireServiceKey admits requests carrying a known X-API-Key.
func (h *NotificationHandler) requireServiceKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !apikey.Verify(r.Header.Get("X-API-Key"), h.apiKeySecret, h.serviceKeys) {
			jsonutil.WriteError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setupRoutes(h *NotificationHandler, authenticate func(http.Handler) http.Handler, ws http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "active", "service": "notifications"})
	}).Methods("GET")
	if ws != nil {
		r.Handle("/ws/notifications", ws)
	}

	internal := r.PathPrefix("/internal").Subrouter()
	internal.Use(h.requireServiceKey)
	internal.HandleFunc("/notifications", h.CreateInternal).Methods("POST")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(authenticate)
	v1.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	v1.HandleFunc("/notifications", h.CreateNotification).Methods("POST")
	v1.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods("GET")
	v1.HandleFunc("/notifications/read-all", h.MarkAllRead).Methods("POST")
	v1.HandleFunc("/notifications/{id}/read", h.MarkRead).Methods("PATCH")
	v1.HandleFunc("/notifications/{id}", h.DeleteNotification).Methods("DELETE")

	v1.HandleFunc("/preferences", h.GetPreferences).Methods("GET")
	v1.HandleFunc("/preferences", h.UpdatePreferences).Methods("PUT")
	v1.HandleFunc("/preferences/reset", h.ResetPreferences).Methods("POST")
	v1.HandleFunc("/preferences/channels", h.ListChannels).Methods("GET")
	v1.HandleFunc("/preferences/types", h.ListTypes).Methods("GET")

	v1.HandleFunc("/admin/broadcast", h.Broadcast).Methods("POST")
	v1.HandleFunc("/admin/reminders/run", h.RunReminders).Methods("POST")

	return r
}
