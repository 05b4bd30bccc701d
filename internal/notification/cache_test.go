package notification_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sapliy/rental-ecosystem/internal/notification"
	"github.com/sapliy/rental-ecosystem/internal/notification/testutil"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// memRedis answers GET, SET and DEL from a map so the client never dials.
type memRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (m *memRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (m *memRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		args := cmd.Args()
		key := fmt.Sprint(args[1])
		switch c := cmd.(type) {
		case *redis.StringCmd:
			v, ok := m.data[key]
			if !ok {
				c.SetErr(redis.Nil)
				return redis.Nil
			}
			c.SetVal(v)
		case *redis.StatusCmd:
			switch v := args[2].(type) {
			case []byte:
				m.data[key] = string(v)
			case string:
				m.data[key] = v
			default:
				m.data[key] = fmt.Sprint(v)
			}
			c.SetVal("OK")
		case *redis.IntCmd:
			var n int64
			for _, a := range args[1:] {
				k := fmt.Sprint(a)
				if _, ok := m.data[k]; ok {
					delete(m.data, k)
					n++
				}
			}
			c.SetVal(n)
		default:
			return fmt.Errorf("unsupported command %s", cmd.Name())
		}
		return nil
	}
}

func (m *memRedis) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memRedis) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

type cachedFixture struct {
	svc   *notification.Service
	store *testutil.MemoryStore
	prefs *testutil.MemoryPreferenceStore
	redis *memRedis
}

func newCachedFixture(t *testing.T) *cachedFixture {
	t.Helper()
	f := &cachedFixture{
		store: testutil.NewMemoryStore(),
		prefs: testutil.NewMemoryPreferenceStore(),
		redis: &memRedis{data: make(map[string]string)},
	}

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(f.redis)
	t.Cleanup(func() { _ = client.Close() })

	logger := observability.NewNopLogger()
	policy, err := notification.NewPolicy("UTC", logger)
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	d := notification.NewDispatcher(logger, &testutil.MockSender{ChannelValue: notification.Push})
	f.svc = notification.NewService(f.store, f.prefs, policy, d, logger,
		notification.WithCache(notification.NewRedisCache(client, time.Minute, logger)),
	)
	return f
}

func TestRedisCache_PreferencesReadThroughAndInvalidation(t *testing.T) {
	f := newCachedFixture(t)
	ctx := context.Background()
	const key = "notification_preferences:u1"

	if _, err := f.svc.GetPreferences(ctx, "u1"); err != nil {
		t.Fatalf("GetPreferences failed: %v", err)
	}
	if _, ok := f.redis.get(key); !ok {
		t.Fatalf("Expected %s to be cached", key)
	}

	// A write that bypasses the service is hidden by the cached entry.
	f.prefs.Put(&notification.Preference{UserID: "u1", Timezone: "America/Bogota"})
	p, _ := f.svc.GetPreferences(ctx, "u1")
	if p.Timezone != "" {
		t.Errorf("Expected cached preferences, got timezone %q", p.Timezone)
	}

	tz := "America/Mexico_City"
	if _, err := f.svc.UpdatePreferences(ctx, "u1", notification.PreferenceUpdate{Timezone: &tz}); err != nil {
		t.Fatalf("UpdatePreferences failed: %v", err)
	}
	if _, ok := f.redis.get(key); ok {
		t.Error("Expected preferences to be invalidated after update")
	}

	p, _ = f.svc.GetPreferences(ctx, "u1")
	if p.Timezone != tz {
		t.Errorf("Expected timezone %s after update, got %q", tz, p.Timezone)
	}

	if _, err := f.svc.ResetPreferences(ctx, "u1"); err != nil {
		t.Fatalf("ResetPreferences failed: %v", err)
	}
	if _, ok := f.redis.get(key); ok {
		t.Error("Expected preferences to be invalidated after reset")
	}
}

func TestRedisCache_CorruptPreferencesAreDiscarded(t *testing.T) {
	f := newCachedFixture(t)
	ctx := context.Background()
	const key = "notification_preferences:u1"

	f.redis.set(key, "{not json")

	p, err := f.svc.GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("Expected defaults, got error %v", err)
	}
	if !p.Enabled(notification.TypePaymentDue, notification.Email) {
		t.Error("Expected default preferences with every channel enabled")
	}

	raw, ok := f.redis.get(key)
	if !ok || !json.Valid([]byte(raw)) {
		t.Errorf("Expected the corrupt entry to be replaced, got %q", raw)
	}
}

func TestRedisCache_UnreadCount(t *testing.T) {
	f := newCachedFixture(t)
	ctx := context.Background()
	const key = "unread_notifications_count:u1"

	n, err := f.svc.Notify(ctx, rentDue("u1"))
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	count, err := f.svc.UnreadCount(ctx, "u1")
	if err != nil || count != 1 {
		t.Fatalf("Expected 1 unread, got %d %v", count, err)
	}
	if v, _ := f.redis.get(key); v != "1" {
		t.Errorf("Expected cached count 1, got %q", v)
	}

	f.redis.set(key, "5")
	if count, _ := f.svc.UnreadCount(ctx, "u1"); count != 5 {
		t.Errorf("Expected the cached count 5, got %d", count)
	}

	if _, err := f.svc.MarkRead(ctx, "u1", n.ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if _, ok := f.redis.get(key); ok {
		t.Error("Expected unread count to be invalidated after MarkRead")
	}
	if count, _ := f.svc.UnreadCount(ctx, "u1"); count != 0 {
		t.Errorf("Expected 0 unread after MarkRead, got %d", count)
	}

	f.redis.set(key, "abc")
	if count, _ := f.svc.UnreadCount(ctx, "u1"); count != 0 {
		t.Errorf("Expected a corrupt count to fall back to the store, got %d", count)
	}
}
