// Package security scrubs sensitive material out of log lines and audit
// notes before they leave the process, and guards the v2/ECIES key-exchange
// envelopes against replay. Adapted from the teacher's infrastructure/security,
// trimmed to the patterns that actually appear in PowerAuth payloads:
// activation OTPs, recovery PUKs, and the raw key material the crypto
// packages derive, rather than the teacher's generic JWT/credit-card set.
package security

import (
	"regexp"
	"strings"
)

// SensitivePattern is a named regexp/mask pair applied by SanitizeString.
type SensitivePattern struct {
	Name    string
	Pattern *regexp.Regexp
	Mask    string
}

var sensitivePatterns = []SensitivePattern{
	{
		Name:    "Activation OTP",
		Pattern: regexp.MustCompile(`(?i)(activationOtp|otp)\s*[:=]\s*['"]?([0-9]{4,10})['"]?`),
		Mask:    "$1=[REDACTED_OTP]",
	},
	{
		Name:    "Master DB Encryption Key",
		Pattern: regexp.MustCompile(`(?i)(masterDbEncryptionKey|masterKey)\s*[:=]\s*['"]?([A-Za-z0-9+/=_-]{16,})['"]?`),
		Mask:    "$1=[REDACTED_KEY]",
	},
	{
		Name:    "Base64 Private Key Material",
		Pattern: regexp.MustCompile(`(?i)(serverPrivateKey|devicePrivateKey)\s*[:=]\s*['"]?([A-Za-z0-9+/=]{20,})['"]?`),
		Mask:    "$1=[REDACTED_PRIVATE_KEY]",
	},
	{
		Name:    "Recovery PUK",
		Pattern: regexp.MustCompile(`(?i)(puk)\s*[:=]\s*['"]?([0-9]{6,12})['"]?`),
		Mask:    "$1=[REDACTED_PUK]",
	},
}

var sensitiveHeaders = []string{
	"authorization",
	"cookie",
	"set-cookie",
}

// SanitizeString masks sensitive material in a free-form string, used
// before a SignatureAuditEntry.Notes or log line leaves the process.
func SanitizeString(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.Pattern.ReplaceAllString(result, pattern.Mask)
	}
	return result
}

// SanitizeError sanitizes an error's message before logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeMap sanitizes a structured logging field map, redacting any key
// whose name suggests it carries key material or an OTP/PUK.
func SanitizeMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	sanitized := make(map[string]interface{}, len(data))
	for key, value := range data {
		if IsSensitiveKey(key) {
			sanitized[key] = "[REDACTED]"
			continue
		}
		if strVal, ok := value.(string); ok {
			sanitized[key] = SanitizeString(strVal)
		} else {
			sanitized[key] = value
		}
	}
	return sanitized
}

// SanitizeHeaders sanitizes HTTP headers for logging of the thin envelope
// transport (§6).
func SanitizeHeaders(headers map[string][]string) map[string][]string {
	if headers == nil {
		return nil
	}
	sanitized := make(map[string][]string, len(headers))
	for key, values := range headers {
		lowerKey := strings.ToLower(key)
		isSensitive := false
		for _, h := range sensitiveHeaders {
			if lowerKey == h {
				isSensitive = true
				break
			}
		}
		if isSensitive {
			sanitized[key] = []string{"[REDACTED]"}
			continue
		}
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = SanitizeString(v)
		}
		sanitized[key] = out
	}
	return sanitized
}

// IsSensitiveKey reports whether a field name suggests key material, an
// OTP, a PUK, or other secret that must never reach plain logs.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, keyword := range []string{
		"otp", "puk", "privatekey", "mastersecret", "factorkey",
		"masterdbencryptionkey", "vaultkey", "transportkey", "password",
	} {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}
