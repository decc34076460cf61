// Package envelope implements the PowerAuth JSON request/response wrapping
// of §6: every request body is `{ "requestObject": <T> }` and every response
// is `{ "status": "OK"|"ERROR", "responseObject": <T> }`. Adapted from the
// teacher's infrastructure/httputil, which wraps errors in a flat
// ErrorResponse{code,message,details,trace_id} shape; this module replaces
// that shape with the spec's status/responseObject envelope while keeping
// the teacher's DecodeJSON/WriteJSON/query-param helper style.
package envelope

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"powerauth-server/internal/apperr"
	"powerauth-server/internal/observability/logging"
)

// Request wraps a decoded request body's payload.
type Request[T any] struct {
	RequestObject T `json:"requestObject"`
}

// Response wraps a successful response payload.
type Response[T any] struct {
	Status         string `json:"status"`
	ResponseObject T      `json:"responseObject"`
}

// ErrorObject is the responseObject shape of an ERROR envelope.
type ErrorObject struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorEnvelope is the full ERROR envelope shape.
type ErrorEnvelope struct {
	Status         string      `json:"status"`
	ResponseObject ErrorObject `json:"responseObject"`
}

var defaultLogger = logging.NewFromEnv("envelope")

// DecodeRequest reads `{ "requestObject": <T> }` from r's body into v. It
// writes a 400 ERROR envelope and returns false on malformed JSON.
func DecodeRequest[T any](w http.ResponseWriter, r *http.Request, v *T) bool {
	var wrapper Request[T]
	if err := json.NewDecoder(r.Body).Decode(&wrapper); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		WriteAppError(w, r, apperr.InvalidInput("requestObject", "malformed JSON body"))
		return false
	}
	*v = wrapper.RequestObject
	return true
}

// WriteOK writes a `{ "status":"OK", "responseObject": <T> }` envelope.
func WriteOK(w http.ResponseWriter, status int, responseObject interface{}) {
	writeJSON(w, status, Response[interface{}]{Status: "OK", ResponseObject: responseObject})
}

// WriteAppError translates an *apperr.Error (or any error, defaulting to
// ERR_INTERNAL / HTTP 500) into the ERROR envelope of §6.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.As(err)
	if appErr == nil {
		appErr = &apperr.Error{
			Code:       "ERR_INTERNAL",
			Message:    "internal server error",
			HTTPStatus: http.StatusInternalServerError,
		}
	}

	writeJSON(w, appErr.HTTPStatus, ErrorEnvelope{
		Status: "ERROR",
		ResponseObject: ErrorObject{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		defaultLogger.WithField("error", err.Error()).Warn("write envelope response")
	}
}
