package apikey

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, hash, err := GenerateKey(ServicePrefix, "secret")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "svc_") {
		t.Errorf("Expected svc_ prefix, got %s", key)
	}
	if len(key) != len("svc_")+48 {
		t.Errorf("Unexpected key length %d", len(key))
	}
	if hash != HashKey(key, "secret") {
		t.Error("Expected hash to match HashKey output")
	}
}

func TestVerify(t *testing.T) {
	key, hash, _ := GenerateKey(ServicePrefix, "secret")

	tests := []struct {
		name    string
		key     string
		secret  string
		allowed []string
		want    bool
	}{
		{"valid key", key, "secret", []string{"other", hash}, true},
		{"wrong secret", key, "nope", []string{hash}, false},
		{"not allowed", key, "secret", []string{"other"}, false},
		{"empty key", "", "secret", []string{hash}, false},
		{"wrong prefix", "pk_" + strings.TrimPrefix(key, "svc_"), "secret", []string{hash}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.key, tt.secret, tt.allowed); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
