// Package rentals is a client for the rental platform notifications API.
package rentals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:8085"
)

// APIError is returned for any response with status >= 400.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status=%d", e.Status)
	}
	return fmt.Sprintf("api error: status=%d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is the main entry point for the SDK.
type Client struct {
	baseURL    string
	token      string
	apiKey     string
	httpClient *http.Client

	Notifications *NotificationService
	Preferences   *PreferenceService
	Admin         *AdminService
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// NewClient creates a client authenticated with a user bearer token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Notifications = &NotificationService{client: c}
	c.Preferences = &PreferenceService{client: c}
	c.Admin = &AdminService{client: c}

	return c
}

// WithBaseURL sets the base URL for the client.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIKey sets the service key used by the internal endpoints.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Priority  string          `json:"priority"`
	Status    string          `json:"status"`
	Channels  []string        `json:"channels"`
	Reference *Reference      `json:"reference,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
}

type CreateNotificationRequest struct {
	UserID    string          `json:"user_id,omitempty"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Priority  string          `json:"priority,omitempty"`
	Channels  []string        `json:"channels,omitempty"`
	Reference *Reference      `json:"reference,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type ListOptions struct {
	Skip       int
	Limit      int
	UnreadOnly bool
}

// NotificationService handles the caller's notifications.
type NotificationService struct {
	client *Client
}

func (s *NotificationService) List(ctx context.Context, opts ListOptions) ([]Notification, error) {
	q := url.Values{}
	if opts.Skip > 0 {
		q.Set("skip", strconv.Itoa(opts.Skip))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.UnreadOnly {
		q.Set("unread_only", "true")
	}
	path := "/v1/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res []Notification
	err := s.client.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

func (s *NotificationService) UnreadCount(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	err := s.client.do(ctx, http.MethodGet, "/v1/notifications/unread-count", nil, &res)
	return res.Count, err
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) (*Notification, error) {
	var res Notification
	err := s.client.do(ctx, http.MethodPatch, "/v1/notifications/"+url.PathEscape(id)+"/read", nil, &res)
	return &res, err
}

func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	var res struct {
		Updated int64 `json:"updated"`
	}
	err := s.client.do(ctx, http.MethodPost, "/v1/notifications/read-all", nil, &res)
	return res.Updated, err
}

func (s *NotificationService) Delete(ctx context.Context, id string) error {
	return s.client.do(ctx, http.MethodDelete, "/v1/notifications/"+url.PathEscape(id), nil, nil)
}

// Create notifies the caller, or another user when the caller's role allows it.
func (s *NotificationService) Create(ctx context.Context, req *CreateNotificationRequest) (*Notification, error) {
	var res Notification
	err := s.client.do(ctx, http.MethodPost, "/v1/notifications", req, &res)
	return &res, err
}

// CreateInternal uses the service API key instead of a user token.
func (s *NotificationService) CreateInternal(ctx context.Context, req *CreateNotificationRequest) (*Notification, error) {
	var res Notification
	err := s.client.do(ctx, http.MethodPost, "/internal/notifications", req, &res)
	return &res, err
}

// Preferences.Channels is keyed by notification type, then channel.
type Preferences struct {
	UserID          string                     `json:"user_id"`
	Channels        map[string]map[string]bool `json:"channels"`
	QuietHoursStart *int                       `json:"quiet_hours_start"`
	QuietHoursEnd   *int                       `json:"quiet_hours_end"`
	Timezone        string                     `json:"timezone,omitempty"`
}

type PreferencesUpdate struct {
	Channels        map[string]map[string]bool `json:"channels,omitempty"`
	QuietHoursStart *int                       `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *int                       `json:"quiet_hours_end,omitempty"`
	ClearQuietHours bool                       `json:"clear_quiet_hours,omitempty"`
	Timezone        *string                    `json:"timezone,omitempty"`
}

type PreferenceService struct {
	client *Client
}

func (s *PreferenceService) Get(ctx context.Context) (*Preferences, error) {
	var res Preferences
	err := s.client.do(ctx, http.MethodGet, "/v1/preferences", nil, &res)
	return &res, err
}

func (s *PreferenceService) Update(ctx context.Context, u *PreferencesUpdate) (*Preferences, error) {
	var res Preferences
	err := s.client.do(ctx, http.MethodPut, "/v1/preferences", u, &res)
	return &res, err
}

func (s *PreferenceService) Reset(ctx context.Context) (*Preferences, error) {
	var res Preferences
	err := s.client.do(ctx, http.MethodPost, "/v1/preferences/reset", nil, &res)
	return &res, err
}

// AdminService needs an admin or service role.
type AdminService struct {
	client *Client
}

type BroadcastRequest struct {
	Event   string         `json:"event,omitempty"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Broadcast returns how many live connections received the message.
func (s *AdminService) Broadcast(ctx context.Context, req *BroadcastRequest) (int, error) {
	var res struct {
		Delivered int `json:"delivered"`
	}
	err := s.client.do(ctx, http.MethodPost, "/v1/admin/broadcast", req, &res)
	return res.Delivered, err
}

type ReminderReport struct {
	AsOf       time.Time `json:"as_of"`
	Scanned    int       `json:"scanned"`
	Created    int       `json:"created"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	Retried    int       `json:"retried"`
}

// RunReminders triggers a reminder scan. A zero asOf means now.
func (s *AdminService) RunReminders(ctx context.Context, asOf time.Time) (*ReminderReport, error) {
	path := "/v1/admin/reminders/run"
	if !asOf.IsZero() {
		path += "?as_of=" + url.QueryEscape(asOf.Format(time.RFC3339))
	}
	var res ReminderReport
	err := s.client.do(ctx, http.MethodPost, path, nil, &res)
	return &res, err
}
