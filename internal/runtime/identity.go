package runtime

import (
	"os"
	"strings"
	"sync"
)

var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the server should fail closed on identity/security
// boundaries (e.g. only trust identity headers protected by verified mTLS).
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		env := Env()
		hasTLSMaterial := strings.TrimSpace(os.Getenv("SERVER_TLS_CERT")) != "" &&
			strings.TrimSpace(os.Getenv("SERVER_TLS_KEY")) != ""
		strictIdentityModeValue = env == Production || hasTLSMaterial
	})
	return strictIdentityModeValue
}
