package rentals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_SendsCredentials(t *testing.T) {
	var gotAuth, gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.RequestURI()
		_ = json.NewEncoder(w).Encode(map[string]int{"count": 7})
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL), WithAPIKey("svc_1"))
	count, err := c.Notifications.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 7 {
		t.Errorf("Expected 7, got %d", count)
	}
	if gotAuth != "Bearer tok" || gotKey != "svc_1" {
		t.Errorf("Unexpected credentials %q / %q", gotAuth, gotKey)
	}
	if gotPath != "/v1/notifications/unread-count" {
		t.Errorf("Unexpected path %s", gotPath)
	}
}

func TestClient_ListQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]Notification{{ID: "n1"}})
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	items, err := c.Notifications.List(context.Background(), ListOptions{Limit: 20, UnreadOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "n1" {
		t.Errorf("Unexpected items %+v", items)
	}
	if gotQuery != "limit=20&unread_only=true" {
		t.Errorf("Unexpected query %s", gotQuery)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Forbidden"}`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	_, err := c.Admin.Broadcast(context.Background(), &BroadcastRequest{Message: "hi"})
	if !IsStatus(err, http.StatusForbidden) {
		t.Fatalf("Expected 403 APIError, got %v", err)
	}
	if err.Error() != "api error: status=403: Forbidden" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestAdmin_RunRemindersAsOf(t *testing.T) {
	var gotAsOf string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAsOf = r.URL.Query().Get("as_of")
		_ = json.NewEncoder(w).Encode(ReminderReport{Created: 3})
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	report, err := c.Admin.RunReminders(context.Background(), time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RunReminders failed: %v", err)
	}
	if report.Created != 3 || gotAsOf != "2026-03-10T08:00:00Z" {
		t.Errorf("Unexpected report %+v for as_of %s", report, gotAsOf)
	}
}

func TestNotifications_DeleteNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/notifications/n1" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient("tok", WithBaseURL(srv.URL)).Notifications.Delete(context.Background(), "n1"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}
