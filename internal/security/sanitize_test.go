package security

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		contains    string
		notContains string
	}{
		{
			name:        "activation OTP",
			input:       "activationOtp=12345",
			contains:    "[REDACTED_OTP]",
			notContains: "12345",
		},
		{
			name:        "master db encryption key",
			input:       "masterDbEncryptionKey=YWJjZGVmZ2hpamtsbW5vcA==",
			contains:    "[REDACTED_KEY]",
			notContains: "YWJjZGVmZ2hpamtsbW5vcA==",
		},
		{
			name:        "recovery puk",
			input:       "puk=123456",
			contains:    "[REDACTED_PUK]",
			notContains: "123456",
		},
		{
			name:        "no sensitive content",
			input:       "activationId=3a6e...",
			contains:    "activationId",
			notContains: "[REDACTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeString(tt.input)
			if !contains(got, tt.contains) {
				t.Errorf("SanitizeString(%q) = %q, want to contain %q", tt.input, got, tt.contains)
			}
			if tt.notContains != "" && contains(got, tt.notContains) {
				t.Errorf("SanitizeString(%q) = %q, must not contain %q", tt.input, got, tt.notContains)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	if SanitizeError(nil) != "" {
		t.Fatal("nil error should sanitize to empty string")
	}
	got := SanitizeError(errors.New("puk=654321 invalid"))
	if !contains(got, "[REDACTED_PUK]") {
		t.Fatalf("SanitizeError() = %q, want redacted puk", got)
	}
}

func TestSanitizeMap(t *testing.T) {
	in := map[string]interface{}{
		"activationOtp": "99999",
		"activationId":  "abc-123",
	}
	out := SanitizeMap(in)
	if out["activationOtp"] != "[REDACTED]" {
		t.Errorf("activationOtp = %v, want [REDACTED]", out["activationOtp"])
	}
	if out["activationId"] != "abc-123" {
		t.Errorf("activationId = %v, want unchanged", out["activationId"])
	}
}

func TestSanitizeHeaders(t *testing.T) {
	in := map[string][]string{
		"Authorization": {"Basic dXNlcjpwYXNz"},
		"X-Trace-Id":    {"trace-1"},
	}
	out := SanitizeHeaders(in)
	if out["Authorization"][0] != "[REDACTED]" {
		t.Errorf("Authorization = %v, want [REDACTED]", out["Authorization"])
	}
	if out["X-Trace-Id"][0] != "trace-1" {
		t.Errorf("X-Trace-Id = %v, want unchanged", out["X-Trace-Id"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for _, k := range []string{"activationOtp", "PUK", "masterSecret", "privateKey"} {
		if !IsSensitiveKey(k) {
			t.Errorf("IsSensitiveKey(%q) = false, want true", k)
		}
	}
	if IsSensitiveKey("activationId") {
		t.Error("IsSensitiveKey(activationId) = true, want false")
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
