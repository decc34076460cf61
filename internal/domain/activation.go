// Package domain holds the PowerAuth activation aggregate and the
// supporting entities it is persisted alongside: application versions,
// master keypairs, and the append-only audit/history logs.
package domain

import (
	"crypto/ecdsa"
	"time"
)

// Status is the activation lifecycle state of §4.5.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPendingCommit  Status = "PENDING_COMMIT"
	StatusActive         Status = "ACTIVE"
	StatusBlocked        Status = "BLOCKED"
	StatusRemoved        Status = "REMOVED"
)

// OTPValidation is the frozen policy choosing when, if ever, the
// activation OTP is checked during provisioning (§4.7).
type OTPValidation string

const (
	OTPValidationNone          OTPValidation = "NONE"
	OTPValidationOnKeyExchange OTPValidation = "ON_KEY_EXCHANGE"
	OTPValidationOnCommit      OTPValidation = "ON_COMMIT"
)

// PrivateKeyEncryption controls how ActivationRecord.ServerPrivateKey is
// protected at rest (§3.1, §6 serverPrivateKeyEncryption).
type PrivateKeyEncryption string

const (
	PrivateKeyNoEncryption PrivateKeyEncryption = "NO_ENCRYPTION"
	PrivateKeyAESHMAC      PrivateKeyEncryption = "AES_HMAC"
)

// ProtocolVersion is the activation's frozen protocol generation (§4.1).
type ProtocolVersion int

const (
	ProtocolV2 ProtocolVersion = 2
	ProtocolV3 ProtocolVersion = 3
)

// ActivationRecord is the aggregate root of §3.1. All mutable fields
// (Counter, CtrData, FailedAttempts, Status, DevicePublicKey, OTP) are
// changed only under the repository's per-activation write lock.
type ActivationRecord struct {
	ActivationID      string
	ActivationCode    string // v3: 4x5 base32 groups. v2: ActivationIDShort instead.
	ActivationIDShort string // v2 only.

	ApplicationID string
	UserID        string

	MasterKeyPairRef int64 // snapshot of the MasterKeyPair in force at init.

	ServerPublicKey     *ecdsa.PublicKey
	ServerPrivateKeyEnc []byte // possibly AES-HMAC encrypted at rest, per EncMode.
	EncMode             PrivateKeyEncryption

	DevicePublicKey *ecdsa.PublicKey // nil until PENDING_COMMIT (I1).

	Counter        uint64
	CtrData        [16]byte // v3 hash-chain counter (§4.2).
	FailedAttempts uint32
	MaxFailedAttempts uint32

	Status Status

	TimestampCreated           time.Time
	TimestampActivationExpire time.Time
	TimestampLastUsed         time.Time

	ActivationOTP           string
	ActivationOTPValidation OTPValidation

	Version ProtocolVersion

	ActivationFlags []string
	BlockedReason   string

	// ExternalUserID mirrors the value recorded on history entries; kept on
	// the aggregate for callback payloads.
	ExternalUserID string
}

// IsTerminal reports whether the activation can no longer transition
// (§4.5: BLOCKED is not terminal — it still reaches ACTIVE again).
func (a *ActivationRecord) IsTerminal() bool {
	return a.Status == StatusRemoved
}

// IsNonTerminal reports whether the activation code/short id attached to
// this record still occupies the uniqueness space of I5.
func (a *ActivationRecord) IsNonTerminal() bool {
	return a.Status == StatusCreated || a.Status == StatusPendingCommit
}

// Tombstone clears key material per I6, called on removeActivation.
func (a *ActivationRecord) Tombstone() {
	a.ServerPublicKey = nil
	a.ServerPrivateKeyEnc = nil
	a.DevicePublicKey = nil
	a.ActivationOTP = ""
	a.Status = StatusRemoved
}

// ApplicationVersion is a presented (applicationKey, applicationSecret)
// pair for one application generation (§3.2).
type ApplicationVersion struct {
	ApplicationID     string
	ApplicationKey    string // 16 bytes, base64.
	ApplicationSecret string // 16 bytes, base64.
	Supported         bool
}

// MasterKeyPair is an application-wide long-term EC keypair (§3.2). Only
// the newest per application signs new activations; older pairs remain
// valid for the activations that snapshot them.
type MasterKeyPair struct {
	ID            int64
	ApplicationID string
	PublicKey     *ecdsa.PublicKey
	PrivateKey    *ecdsa.PrivateKey
	CreatedAt     time.Time
}

// SignatureResult is the coarse outcome surfaced by the signature engine
// and audit log (§7: never reveal more than this).
type SignatureResult string

const (
	SignatureResultSucceeded SignatureResult = "SUCCEEDED"
	SignatureResultFailed    SignatureResult = "FAILED"
)

// SignatureAuditEntry is an append-only record of a signature verification
// attempt (§3.2).
type SignatureAuditEntry struct {
	ID              int64
	ActivationID    string
	ApplicationID   string
	UserID          string
	SignatureType   string
	DataFingerprint string
	Result          SignatureResult
	Notes           string
	Counter         uint64
	Timestamp       time.Time
}

// ActivationHistoryEntry is an append-only record of a status transition
// (§3.2).
type ActivationHistoryEntry struct {
	ID             int64
	ActivationID   string
	Status         Status
	Timestamp      time.Time
	ExternalUserID string
}

// RecoveryConfig models the per-application recovery-code feature toggle
// (pa_recovery_config), supplemented per SPEC_FULL.md: the *policy* around
// PUK rotation is out of scope, but the config row and its visibility to
// the façade are not.
type RecoveryConfig struct {
	ApplicationID              string
	Activated                  bool
	RecoveryPostcardEnabled    bool
	AllowMultipleRecoveryCodes bool
}

// RecoveryCode is a single issued recovery code with its PUKs (pa_recovery_code/pa_recovery_puk).
type RecoveryCode struct {
	RecoveryCodeID string
	ApplicationID  string
	UserID         string
	ActivationID   string
	Code           string
	Status         string
	PUKs           []RecoveryPUK
}

// RecoveryPUK is one single-use PUK belonging to a RecoveryCode.
type RecoveryPUK struct {
	PUKIndex int
	PUKHash  []byte
	Status   string // VALID, USED, INVALID
}
