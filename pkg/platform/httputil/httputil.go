package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/middleware/auth"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding error cannot change the
	// status code anymore.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates transport-agnostic domain errors into HTTP
// status codes and a JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": string(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}
	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeDuplicateVerified, dErrors.CodeStateConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeRetryExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeChannelFailure:
		return http.StatusBadGateway
	case dErrors.CodeGenerationExhausted, dErrors.CodeProvisioningRolledBack, dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RequirePersonID extracts the authenticated person from context. The
// auth middleware guarantees it on protected routes; a miss here is a
// wiring bug, not a client error.
func RequirePersonID(ctx context.Context, logger *slog.Logger, requestID string) (id.PersonID, error) {
	personID := auth.GetPersonID(ctx)
	if personID.IsNil() {
		if logger != nil {
			logger.ErrorContext(ctx, "person id missing from context despite auth middleware",
				"request_id", requestID)
		}
		return id.PersonID{}, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return personID, nil
}
