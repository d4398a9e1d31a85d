package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "fishtank/pkg/domain-errors"
)

// ErrorResponse is the JSON envelope for every non-2xx API answer.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, an encoding failure cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// Only codes that are safe to show to a submitter carry their message;
// infrastructure failures are reduced to the bare code.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: DomainCodeToHTTPCode(dErrors.CodeInternal),
		})
		return
	}

	res := ErrorResponse{Error: DomainCodeToHTTPCode(domainErr.Code)}
	if exposesMessage(domainErr.Code) {
		res.ErrorDescription = domainErr.Message
	}
	WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), res)
}

func exposesMessage(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeInternal, dErrors.CodeRelayUnavailable, dErrors.CodeConfigMissing:
		return false
	default:
		return true
	}
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeInvalidTicket:
		return http.StatusBadRequest
	case dErrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeSpamRejected:
		return http.StatusForbidden
	case dErrors.CodeBusy:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeRelayRejected, dErrors.CodeRelayUnavailable:
		return http.StatusBadGateway
	case dErrors.CodeConfigMissing:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the error string of
// the JSON envelope.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation:
		return "validation_error"
	case dErrors.CodeInvalidTicket:
		return "invalid_ticket"
	case dErrors.CodeSpamRejected:
		return "submission_blocked"
	case dErrors.CodeBusy:
		return "submission_pending"
	case dErrors.CodeRateLimited:
		return "rate_limit_exceeded"
	case dErrors.CodeRelayRejected:
		return "relay_rejected"
	case dErrors.CodeRelayUnavailable:
		return "relay_unavailable"
	case dErrors.CodeConfigMissing:
		return "service_not_configured"
	case dErrors.CodeTimeout:
		return "timeout"
	default:
		return "internal_error"
	}
}
