// Package httputil centralizes JSON response writing so every endpoint emits
// the same envelope: payloads with a correlation id, errors as
// {error, error_description, correlation_id}.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "recordgate/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies before decoding.
const maxBodyBytes = 1 << 20

// CorrelationHeader carries the correlation id on every request and response
// so infrastructure-level tracing works without parsing bodies.
const CorrelationHeader = "X-Correlation-ID"

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusUnprocessableEntity,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeInvariantViolation: http.StatusUnprocessableEntity,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

// StatusFor maps a domain error code to its HTTP status.
// Unknown codes map to 500.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON payload with the given status and echoes the
// correlation id header when present.
func WriteJSON(w http.ResponseWriter, status int, correlationID string, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if correlationID != "" {
		w.Header().Set(CorrelationHeader, correlationID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// DecodeAndPrepare decodes a JSON request body into T. On failure it writes
// the bad_request envelope and returns ok=false; the handler just returns.
// Unknown body keys are preserved for types that capture them, so decoding is
// deliberately not strict here.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, correlationID string) (*T, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "request body decode failed",
			"correlation_id", correlationID,
			"error", err)
		WriteError(w, correlationID, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON"))
		return nil, false
	}
	return &req, true
}

// WriteError translates a domain error into the JSON error envelope.
// Internal errors omit the description so infrastructure detail never reaches
// the caller; everything else returns the domain message verbatim.
func WriteError(w http.ResponseWriter, correlationID string, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{
		Error:         string(code),
		CorrelationID: correlationID,
	}
	if code != dErrors.CodeInternal {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, StatusFor(code), correlationID, resp)
}
