package service

import (
	"context"

	"powerauth-server/internal/activationcrypto"
	"powerauth-server/internal/apperr"
	pacrypto "powerauth-server/internal/crypto"
	"powerauth-server/internal/domain"
	"powerauth-server/internal/signature"
)

// StartUpgradeRequest is the /v3/upgrade/start request payload: a v2
// activation asking to adopt v3's hash-chained counter. The server hands
// back a freshly generated CTR_DATA, ECIES-sealed under the activation's
// device public key, for the client to echo back in CommitUpgrade.
type StartUpgradeRequest struct {
	ActivationID       string `json:"activationId"`
	ApplicationKey     string `json:"applicationKey"`
	EphemeralPublicKey []byte `json:"ephemeralPublicKey"`
}

// StartUpgradeResponse carries the ECIES envelope wrapping the new
// CTR_DATA seed; CommitUpgrade persists it once the client confirms
// receipt with a v3 signature.
type StartUpgradeResponse struct {
	CtrData *activationcrypto.EciesEnvelope `json:"ctrData"`
}

// StartUpgrade seeds a new hash-chain counter for a still-v2 activation.
// It does not mutate the record: the pinned version only flips in
// CommitUpgrade, once the client has proven it holds the new CTR_DATA by
// signing with it.
func (s *Services) StartUpgrade(ctx context.Context, req StartUpgradeRequest) (*StartUpgradeResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}
	rec, err := s.Activations.Get(ctx, req.ActivationID)
	if err != nil {
		return nil, apperr.ActivationNotFound(req.ActivationID)
	}
	if rec.Status != domain.StatusActive {
		return nil, apperr.InvalidState(rec.ActivationID, "startUpgrade", string(rec.Status))
	}
	if rec.Version != domain.ProtocolV2 {
		return nil, apperr.InvalidState(rec.ActivationID, "startUpgrade", "already v3")
	}

	ctrSeed, err := pacrypto.GenerateRandomBytes(16)
	if err != nil {
		return nil, apperr.CryptoFailure("generate ctrData seed", err)
	}

	env, err := activationcrypto.EciesEncrypt(rec.DevicePublicKey, ctrSeed, []byte(req.ApplicationKey))
	if err != nil {
		return nil, apperr.CryptoFailure("seal ctrData envelope", err)
	}

	return &StartUpgradeResponse{CtrData: env}, nil
}

// CommitUpgradeRequest is the /v3/upgrade/commit request payload: the
// client has computed a v3 signature using the CTR_DATA it recovered
// from StartUpgrade, proving it holds the new counter material.
type CommitUpgradeRequest struct {
	VerifySignatureRequest
	CtrData [16]byte `json:"-"`
}

// CommitUpgradeResponse reports the flip to v3.
type CommitUpgradeResponse struct {
	Committed bool `json:"committed"`
}

// CommitUpgrade verifies the client's first v3 signature under the
// proposed CtrData, then atomically flips the activation's pinned
// version and counter state from v2 to v3 (§4.1 "version is pinned at
// activation init and never changes" — upgrade is the one sanctioned
// exception, driven by this endpoint alone). The flip never happens
// without proof the client already holds the new CTR_DATA: that's
// exactly what the embedded VerifySignatureRequest checks, mirroring
// VerifySignature's own verify-then-mutate shape.
func (s *Services) CommitUpgrade(ctx context.Context, req CommitUpgradeRequest) (*CommitUpgradeResponse, error) {
	if req.ActivationID == "" {
		return nil, apperr.InvalidInput("activationId", "required")
	}
	if req.Signature == "" {
		return nil, apperr.InvalidInput("signature", "required")
	}

	sigType := signature.Type(req.SignatureType)
	if sigType == "" {
		sigType = signature.TypePossessionKnowledge
	}

	appVersion, err := s.AppVersions.GetByApplicationKey(ctx, req.ApplicationKey)
	if err != nil {
		return nil, apperr.ApplicationNotFound(req.ApplicationKey)
	}
	applicationSecret := []byte(appVersion.ApplicationSecret)

	var committed bool

	rec, err := s.Activations.WithLock(ctx, req.ActivationID, func(cur *domain.ActivationRecord) (*domain.ActivationRecord, error) {
		if cur.Status != domain.StatusActive {
			return nil, apperr.InvalidState(cur.ActivationID, "commitUpgrade", string(cur.Status))
		}
		if cur.Version != domain.ProtocolV2 {
			return cur, nil
		}

		privKey, err := s.decryptServerPrivateKey(cur)
		if err != nil {
			return cur, err
		}
		serverPrivateKey := reconstructServerPrivateKey(cur, privKey)

		fullKeys, err := activationcrypto.DeriveFactorKeys(serverPrivateKey, cur.DevicePublicKey)
		if err != nil {
			return cur, apperr.CryptoFailure("derive factor keys for upgrade commit", err)
		}
		defer fullKeys.Zero()

		keys := signature.FactorKeys{
			Possession: fullKeys.Possession,
			Knowledge:  fullKeys.Knowledge,
			Biometry:   fullKeys.Biometry,
		}

		lookahead := s.Config.Signature.ValidationLookahead
		result, verr := signature.VerifyV3(sigType, keys, req.Data, applicationSecret, 0, req.CtrData, lookahead, req.Signature)
		if verr != nil {
			return cur, apperr.CryptoFailure("compute upgrade commit signature", verr)
		}
		if !result.Matched {
			return cur, apperr.SignatureInvalid(cur.ActivationID, 0)
		}

		cur.Version = domain.ProtocolV3
		cur.Counter = result.NextCounter
		cur.CtrData = result.NextCtrData
		committed = true
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	if committed {
		s.logger().WithContext(ctx).WithField("activation_id", rec.ActivationID).
			Info("activation upgraded from v2 to v3")
	}

	return &CommitUpgradeResponse{Committed: committed}, nil
}
