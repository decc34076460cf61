package domain

import "time"

// Token is an access token issued after a successful signature
// verification (pa_token), letting a client prove possession with a
// cheap HMAC digest instead of a full counter-based signature for a
// bounded period — used by push/notification scenarios that cannot
// carry the full signature header (§2 "token issuance").
type Token struct {
	TokenID       string
	ActivationID  string
	ApplicationID string
	UserID        string
	TokenSecret   []byte
	SignatureType string
	CreatedAt     time.Time
}
