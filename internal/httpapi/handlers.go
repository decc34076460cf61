package httpapi

import (
	"net/http"

	"powerauth-server/internal/httpapi/envelope"
	"powerauth-server/internal/service"
)

// handle decodes a requestObject of type Req, dispatches to op, and writes
// the resulting responseObject or ERROR envelope. Every POST endpoint of
// /v3 and /v2 is this one shape, matching §6's uniform envelope contract;
// the GET endpoints read query parameters instead.
func handle[Req any, Resp any](op func(r *http.Request, req Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if !envelope.DecodeRequest(w, r, &req) {
			return
		}
		resp, err := op(r, req)
		if err != nil {
			envelope.WriteAppError(w, r, err)
			return
		}
		envelope.WriteOK(w, http.StatusOK, resp)
	}
}

func (rt *Router) initActivation(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.InitActivationRequest) (*service.InitActivationResponse, error) {
		return rt.Services.InitActivation(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) prepareActivation(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.PrepareActivationRequest) (*service.PrepareActivationResponse, error) {
		return rt.Services.PrepareActivation(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) createActivationV2(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.CreateActivationV2Request) (*service.CreateActivationV2Response, error) {
		return rt.Services.CreateActivationV2(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) commitActivation(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.CommitActivationRequest) (*service.CommitActivationResponse, error) {
		return rt.Services.CommitActivation(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) activationStatus(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req struct {
		ActivationID string `json:"activationId"`
	}) (*service.ActivationStatusResponse, error) {
		return rt.Services.GetActivationStatus(r.Context(), req.ActivationID)
	}).ServeHTTP(w, r)
}

func (rt *Router) removeActivation(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.RemoveActivationRequest) (*service.RemoveActivationResponse, error) {
		return rt.Services.RemoveActivation(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) blockActivation(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.BlockActivationRequest) (*service.BlockActivationResponse, error) {
		return rt.Services.BlockActivation(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) unblockActivation(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.UnblockActivationRequest) (*service.UnblockActivationResponse, error) {
		return rt.Services.UnblockActivation(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) updateActivationOtp(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.UpdateActivationOtpRequest) (*service.UpdateActivationOtpResponse, error) {
		return rt.Services.UpdateActivationOtp(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) verifySignature(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.VerifySignatureRequest) (*service.VerifySignatureResponse, error) {
		return rt.Services.VerifySignature(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) verifyECDSASignature(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.VerifyECDSASignatureRequest) (*service.VerifyECDSASignatureResponse, error) {
		return rt.Services.VerifyECDSASignature(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) verifyOfflineSignature(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.VerifyOfflineSignatureRequest) (*service.VerifyOfflineSignatureResponse, error) {
		return rt.Services.VerifyOfflineSignature(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) createPersonalizedOfflineSignature(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.CreatePersonalizedOfflineSignaturePayloadRequest) (*service.OfflineSignaturePayloadResponse, error) {
		return rt.Services.CreatePersonalizedOfflineSignaturePayload(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) createNonPersonalizedOfflineSignature(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.CreateNonPersonalizedOfflineSignaturePayloadRequest) (*service.OfflineSignaturePayloadResponse, error) {
		return rt.Services.CreateNonPersonalizedOfflineSignaturePayload(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) unlockVault(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.UnlockVaultRequest) (*service.UnlockVaultResponse, error) {
		return rt.Services.UnlockVault(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) createToken(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.CreateTokenRequest) (*service.CreateTokenResponse, error) {
		return rt.Services.CreateToken(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) validateToken(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.ValidateTokenRequest) (*service.ValidateTokenResponse, error) {
		return rt.Services.ValidateToken(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) removeToken(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.RemoveTokenRequest) (*struct {
		Removed bool `json:"removed"`
	}, error) {
		if err := rt.Services.RemoveToken(r.Context(), req); err != nil {
			return nil, err
		}
		return &struct {
			Removed bool `json:"removed"`
		}{Removed: true}, nil
	}).ServeHTTP(w, r)
}

func (rt *Router) startUpgrade(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.StartUpgradeRequest) (*service.StartUpgradeResponse, error) {
		return rt.Services.StartUpgrade(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) commitUpgrade(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.CommitUpgradeRequest) (*service.CommitUpgradeResponse, error) {
		return rt.Services.CommitUpgrade(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) createRecoveryCode(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.CreateRecoveryCodeRequest) (*service.CreateRecoveryCodeResponse, error) {
		return rt.Services.CreateRecoveryCode(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) confirmRecovery(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.ConfirmRecoveryRequest) (*service.ConfirmRecoveryResponse, error) {
		return rt.Services.ConfirmRecovery(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) lookupRecovery(w http.ResponseWriter, r *http.Request) {
	req := service.LookupRecoveryRequest{
		ApplicationID: envelope.QueryString(r, "applicationId", ""),
		UserID:        envelope.QueryString(r, "userId", ""),
		ActivationID:  envelope.QueryString(r, "activationId", ""),
		RecoveryCode:  envelope.QueryString(r, "recoveryCode", ""),
	}
	resp, err := rt.Services.LookupRecovery(r.Context(), req)
	if err != nil {
		envelope.WriteAppError(w, r, err)
		return
	}
	envelope.WriteOK(w, http.StatusOK, resp)
}

func (rt *Router) revokeRecovery(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.RevokeRecoveryRequest) (*struct {
		Revoked bool `json:"revoked"`
	}, error) {
		if err := rt.Services.RevokeRecovery(r.Context(), req); err != nil {
			return nil, err
		}
		return &struct {
			Revoked bool `json:"revoked"`
		}{Revoked: true}, nil
	}).ServeHTTP(w, r)
}

func (rt *Router) recoveryConfigDetail(w http.ResponseWriter, r *http.Request) {
	applicationID := envelope.QueryString(r, "applicationId", "")
	resp, err := rt.Services.GetRecoveryConfig(r.Context(), applicationID)
	if err != nil {
		envelope.WriteAppError(w, r, err)
		return
	}
	envelope.WriteOK(w, http.StatusOK, resp)
}

func (rt *Router) recoveryConfigUpdate(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.RecoveryConfigResponse) (*service.RecoveryConfigResponse, error) {
		return rt.Services.UpdateRecoveryConfig(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) eciesDecryptor(w http.ResponseWriter, r *http.Request) {
	handle(func(r *http.Request, req service.EciesDecryptorRequest) (*service.EciesDecryptorResponse, error) {
		return rt.Services.EciesDecryptor(r.Context(), req)
	}).ServeHTTP(w, r)
}

func (rt *Router) listActivations(w http.ResponseWriter, r *http.Request) {
	applicationID := envelope.QueryString(r, "applicationId", "")
	userID := envelope.QueryString(r, "userId", "")
	resp, err := rt.Services.ListActivations(r.Context(), applicationID, userID)
	if err != nil {
		envelope.WriteAppError(w, r, err)
		return
	}
	envelope.WriteOK(w, http.StatusOK, resp)
}

func (rt *Router) lookupActivation(w http.ResponseWriter, r *http.Request) {
	codeOrShortID := envelope.QueryString(r, "activationCode", "")
	resp, err := rt.Services.LookupActivation(r.Context(), codeOrShortID)
	if err != nil {
		envelope.WriteAppError(w, r, err)
		return
	}
	envelope.WriteOK(w, http.StatusOK, resp)
}

func (rt *Router) activationHistory(w http.ResponseWriter, r *http.Request) {
	activationID := envelope.QueryString(r, "activationId", "")
	resp, err := rt.Services.ActivationHistory(r.Context(), activationID)
	if err != nil {
		envelope.WriteAppError(w, r, err)
		return
	}
	envelope.WriteOK(w, http.StatusOK, resp)
}
