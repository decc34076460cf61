// Package service binds the crypto, signature and state-machine layers
// into the documented PowerAuth operations (§2 "Service façade"):
// initActivation, prepareActivation, createActivation, commitActivation,
// getActivationStatus, removeActivation, blockActivation,
// unblockActivation, verifySignature, unlockVault, updateActivationOtp,
// plus the ECDSA offline-signature path and the periodic sweep entry
// point. Per the design notes (§9), every operation is a function of
// (Services, Request) -> Result with no package-level mutable state: the
// Services struct is the single injected collaborator bundle, built once
// at process startup by cmd/appserver.
package service

import (
	"context"
	"time"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/callback"
	"powerauth-server/internal/config"
	"powerauth-server/internal/metrics"
	"powerauth-server/internal/observability/logging"
	"powerauth-server/internal/security"
	"powerauth-server/internal/store"
)

// Services carries every collaborator the façade operations depend on:
// the repository catalogue, configuration, clock, logger, metrics and
// the callback notifier. No process-wide mutable state beyond this
// struct and the caches owned by its repositories (§5 "Shared state").
type Services struct {
	Activations  store.ActivationRepository
	AppVersions  store.ApplicationVersionRepository
	MasterKeys   store.MasterKeyPairRepository
	Audit        store.SignatureAuditRepository
	History      store.ActivationHistoryRepository
	Recovery     store.RecoveryRepository
	Tokens       store.TokenRepository

	Clock Clock

	Config *config.Config

	Logger  *logging.Logger
	Metrics *metrics.Metrics

	Notifier callback.Notifier

	// MasterDBEncryptionKey protects ActivationRecord.ServerPrivateKeyEnc at
	// rest when Config.Security.ServerPrivateKeyEncMode == AES_HMAC (§6).
	MasterDBEncryptionKey []byte

	// Nonces rejects a v2 activationNonce or v3 ephemeral public key that
	// has already been used for the same activation's key exchange (§4.1).
	Nonces *security.NonceCache
}

// New builds a Services bundle, defaulting Clock to SystemClock, Logger
// to a "service" logger from the environment and Notifier to a no-op
// when unset, so tests can construct a partial Services without nil
// panics on the ambient collaborators.
func New(cfg *config.Config) *Services {
	return &Services{
		Clock:    SystemClock{},
		Config:   cfg,
		Logger:   logging.NewFromEnv("service"),
		Metrics:  metrics.Global(),
		Notifier: callback.NotifierFunc(func(context.Context, callback.Event) {}),
		Nonces:   security.NewNonceCache(5*time.Minute, 100_000),
	}
}

func (s *Services) nonces() *security.NonceCache {
	if s.Nonces != nil {
		return s.Nonces
	}
	return security.NewNonceCache(5*time.Minute, 100_000)
}

func (s *Services) logger() *logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.NewFromEnv("service")
}

func (s *Services) notify() callback.Notifier {
	if s.Notifier != nil {
		return s.Notifier
	}
	return callback.NotifierFunc(func(context.Context, callback.Event) {})
}

func (s *Services) recordTransition(from, to string) {
	if s.Metrics != nil {
		s.Metrics.RecordTransition(from, to)
	}
}

func (s *Services) recordLockout() {
	if s.Metrics != nil {
		s.Metrics.RecordLockout()
	}
}

func (s *Services) recordSignatureVerification(sigType string, succeeded bool, d time.Duration) {
	if s.Metrics != nil {
		s.Metrics.RecordSignatureVerification(sigType, succeeded, d)
	}
}

var errMasterKeyMissing = apperr.Config("no master keypair configured for application")
