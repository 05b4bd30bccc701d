package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	_, err := runCLIWithConfig(t, "", args...)
	return err
}

// runCLIWithConfig runs rentalctl against a temporary config file and returns its path.
func runCLIWithConfig(t *testing.T, content string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	for _, f := range []*pflag.Flag{rootCmd.PersistentFlags().Lookup("url"), logoutCmd.Flags().Lookup("keep-url")} {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}

	cfg := filepath.Join(t.TempDir(), "rentalctl.yaml")
	if err := os.WriteFile(cfg, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
	return cfg, rootCmd.Execute()
}

func readConfig(t *testing.T, path string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}
	return v
}

func TestRemindersRun_SendsAsOf(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]int{"created": 2})
	}))
	defer srv.Close()

	t.Setenv("RENTALCTL_TOKEN", "tok")
	if err := runCLI(t, "--url", srv.URL, "reminders", "run", "--as-of", "2026-03-10T08:00:00Z"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if gotPath != "/v1/admin/reminders/run?as_of=2026-03-10T08%3A00%3A00Z" {
		t.Errorf("Unexpected request %s", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Expected bearer token, got %q", gotAuth)
	}
}

func TestRemindersRun_InvalidAsOf(t *testing.T) {
	if err := runCLI(t, "reminders", "run", "--as-of", "yesterday"); err == nil {
		t.Error("Expected an error for a malformed --as-of")
	}
}

func TestSend_InternalNeedsAPIKey(t *testing.T) {
	t.Setenv("RENTALCTL_API_KEY", "")
	err := runCLI(t, "notifications", "send", "--internal", "--title", "Hi", "--message", "Hello")
	if err == nil {
		t.Error("Expected an error without a service key")
	}
}

func TestApikeyGenerate_RequiresSecret(t *testing.T) {
	t.Setenv("NOTIFY_API_KEY_SECRET", "")
	if err := runCLI(t, "apikey", "generate"); err == nil {
		t.Error("Expected an error without a secret")
	}
}

func TestLogout_ClearsCredentials(t *testing.T) {
	const stored = "token: tok\napi_key: svc_abc\nbase_url: http://rentals.internal:8085\n"

	tests := []struct {
		name    string
		args    []string
		wantURL string
	}{
		{name: "clears everything", args: []string{"logout"}, wantURL: ""},
		{name: "keeps url", args: []string{"logout", "--keep-url"}, wantURL: "http://rentals.internal:8085"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RENTALCTL_TOKEN", "")
			t.Setenv("RENTALCTL_API_KEY", "")
			path, err := runCLIWithConfig(t, stored, tt.args...)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}

			v := readConfig(t, path)
			if v.GetString("token") != "" || v.GetString("api_key") != "" {
				t.Errorf("Expected credentials cleared, got token=%q api_key=%q", v.GetString("token"), v.GetString("api_key"))
			}
			if got := v.GetString("base_url"); got != tt.wantURL {
				t.Errorf("Expected base_url %q, got %q", tt.wantURL, got)
			}
		})
	}
}
