package service

import (
	"time"

	"powerauth-server/internal/domain"
)

// InitActivationRequest is the /v3/activation/init request payload.
type InitActivationRequest struct {
	ApplicationID     string               `json:"applicationId"`
	UserID            string               `json:"userId"`
	ExternalUserID    string               `json:"externalUserId,omitempty"`
	MaxFailedAttempts uint32               `json:"maxFailureCount,omitempty"`
	ActivationOTP     string               `json:"activationOtp,omitempty"`
	OTPValidation     domain.OTPValidation `json:"activationOtpValidation,omitempty"`
	ActivationExpire  *time.Time           `json:"timestampActivationExpire,omitempty"`
	Flags             []string             `json:"activationFlags,omitempty"`
}

// InitActivationResponse is the /v3/activation/init response payload.
type InitActivationResponse struct {
	ActivationID        string `json:"activationId"`
	ActivationCode      string `json:"activationCode"`
	ActivationSignature string `json:"activationSignature"` // base64 DER, ECDSA over activationCode by the master keypair.
	UserID              string `json:"userId"`
	ApplicationID       string `json:"applicationId"`
}

// PrepareActivationRequest is the /v3/activation/prepare request payload:
// the client's ECIES envelope sealing its device public key (and,
// optionally, the activation OTP when validation mode is
// ON_KEY_EXCHANGE) under the application master public key.
type PrepareActivationRequest struct {
	ActivationCode    string `json:"activationCode"`
	ApplicationKey    string `json:"applicationKey"`
	EphemeralPublicKey []byte `json:"ephemeralPublicKey"`
	EncryptedData     []byte `json:"encryptedData"`
	MAC               []byte `json:"mac"`
	IV                []byte `json:"iv,omitempty"`
}

// preparePayload is the plaintext the client seals inside the ECIES
// envelope: the device public key and, when required, the OTP.
type preparePayload struct {
	DevicePublicKey []byte `json:"devicePublicKey"`
	ActivationOTP   string `json:"activationOtp,omitempty"`
	ActivationName  string `json:"activationName,omitempty"`
}

// PrepareActivationResponse is the /v3/activation/prepare response
// payload: the server's ECIES envelope sealing its public key (and v3
// ctrData) under the now-known device public key.
type PrepareActivationResponse struct {
	ActivationID       string `json:"activationId"`
	EphemeralPublicKey []byte `json:"ephemeralPublicKey"`
	EncryptedData      []byte `json:"encryptedData"`
	MAC                []byte `json:"mac"`
	ActivationStatus   string `json:"activationStatus"`
}

// serverKeyPayload is the plaintext sealed in PrepareActivationResponse.
type serverKeyPayload struct {
	ServerPublicKey []byte `json:"serverPublicKey"`
	CtrData         []byte `json:"ctrData"`
}

// CreateActivationV2Request is the legacy /v2/activation/create request.
type CreateActivationV2Request struct {
	ActivationIDShort     string `json:"activationIdShort"`
	ApplicationKey        string `json:"applicationKey"`
	ApplicationSecret     string `json:"applicationSecret"`
	EphemeralPublicKey    []byte `json:"ephemeralPublicKey"`
	EncryptedDevicePubKey []byte `json:"cDevicePublicKey"`
	ActivationNonce       []byte `json:"activationNonce"`
	ApplicationSignature  []byte `json:"applicationSignature"`
	ActivationOTP         string `json:"-"` // supplied out of band by the caller, never logged.
}

// CreateActivationV2Response is the legacy /v2/activation/create response.
type CreateActivationV2Response struct {
	ActivationID           string `json:"activationId"`
	EphemeralPublicKey     []byte `json:"ephemeralPublicKey"`
	EncryptedServerPubKey  []byte `json:"encryptedServerPublicKey"`
	ActivationStatus       string `json:"activationStatus"`
}

// CommitActivationRequest is the /v3/activation/commit request payload.
type CommitActivationRequest struct {
	ActivationID  string `json:"activationId"`
	ActivationOTP string `json:"activationOtp,omitempty"`
}

// CommitActivationResponse is the /v3/activation/commit response payload.
type CommitActivationResponse struct {
	ActivationID     string `json:"activationId"`
	ActivationStatus string `json:"activationStatus"`
}

// ActivationStatusResponse is the /v3/activation/status response payload.
type ActivationStatusResponse struct {
	ActivationID      string   `json:"activationId"`
	ActivationStatus  string   `json:"activationStatus"`
	BlockedReason     string   `json:"blockedReason,omitempty"`
	ApplicationID     string   `json:"applicationId"`
	UserID            string   `json:"userId"`
	Counter           uint64   `json:"counter"`
	FailedAttempts    uint32   `json:"failedAttempts"`
	MaxFailedAttempts uint32   `json:"maxFailedAttempts"`
	Version           int      `json:"version"`
	ActivationFlags   []string `json:"activationFlags,omitempty"`
	TimestampCreated  time.Time `json:"timestampCreated"`
	TimestampLastUsed time.Time `json:"timestampLastUsed,omitempty"`
}

// VerifySignatureRequest is the /v3/signature/verify request payload.
type VerifySignatureRequest struct {
	ActivationID          string  `json:"activationId"`
	ApplicationKey         string  `json:"applicationKey"`
	Data                   []byte  `json:"data"`
	Signature              string  `json:"signature"`
	SignatureType          string  `json:"signatureType"`
	ForcedSignatureVersion *int    `json:"forcedSignatureVersion,omitempty"`
}

// VerifySignatureResponse is the /v3/signature/verify response payload.
type VerifySignatureResponse struct {
	SignatureValid     bool   `json:"signatureValid"`
	ActivationID       string `json:"activationId"`
	ActivationStatus   string `json:"activationStatus"`
	RemainingAttempts  uint32 `json:"remainingAttempts"`
	Counter            uint64 `json:"counter"`
	UserID             string `json:"userId,omitempty"`
}

// UnlockVaultRequest is the /v3/vault/unlock request payload; it carries
// the same signed envelope as VerifySignatureRequest because vault unlock
// requires a fresh signature verification as its precondition (§4.4).
type UnlockVaultRequest struct {
	VerifySignatureRequest
}

// UnlockVaultResponse is the /v3/vault/unlock response payload.
type UnlockVaultResponse struct {
	ActivationID                string `json:"activationId"`
	SignatureValid              bool   `json:"signatureValid"`
	EncryptedVaultEncryptionKey []byte `json:"encryptedVaultEncryptionKey,omitempty"`
	RemainingAttempts           uint32 `json:"remainingAttempts"`
	ActivationStatus            string `json:"activationStatus"`
	UserID                      string `json:"userId,omitempty"`
	Counter                     uint64 `json:"counter"`
}

// VerifyOfflineSignatureRequest is the /v3/signature/offline/verify request
// payload: the decimal signature the user read off their device after
// signing the nonce/data pair a prior /create call issued, checked without
// any live network round trip to the device.
type VerifyOfflineSignatureRequest struct {
	ActivationID  string `json:"activationId"`
	Data          string `json:"data"`
	Nonce         string `json:"nonce"`
	Signature     string `json:"signature"`
	SignatureType string `json:"signatureType,omitempty"`
}

// VerifyOfflineSignatureResponse is the /v3/signature/offline/verify
// response payload.
type VerifyOfflineSignatureResponse struct {
	SignatureValid    bool   `json:"signatureValid"`
	ActivationID      string `json:"activationId"`
	ActivationStatus  string `json:"activationStatus"`
	RemainingAttempts uint32 `json:"remainingAttempts"`
}

// VerifyECDSASignatureRequest is the /v3/signature/ecdsa/verify request.
type VerifyECDSASignatureRequest struct {
	ActivationID string `json:"activationId"`
	Data         []byte `json:"data"`
	Signature    []byte `json:"signature"` // ASN.1 DER, per internal/crypto.Sign/Verify.
}

// VerifyECDSASignatureResponse is the /v3/signature/ecdsa/verify response.
type VerifyECDSASignatureResponse struct {
	SignatureValid bool `json:"signatureValid"`
}

// statusString renders a Status for the wire, tolerating a nil record by
// returning REMOVED per §9 open question (a) ("match this to avoid
// information leak rather than guess a cleaner semantics").
func statusString(rec *domain.ActivationRecord) string {
	if rec == nil {
		return string(domain.StatusRemoved)
	}
	return string(rec.Status)
}
