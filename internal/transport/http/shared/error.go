package shared

import (
	"errors"
	"net/http"

	"veridoc/internal/transport/http/json"
	dErrors "veridoc/pkg/domain-errors"
)

// WriteError centralizes domain error translation to HTTP responses. The
// response carries the stable kind, a safe message, and the retry hint;
// never raw identity numbers or transport errors.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]any{
			"error":     string(domainErr.Kind),
			"retryable": domainErr.Retryable,
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		if domainErr.Suggestion != "" {
			response["suggestion"] = domainErr.Suggestion
		}
		json.WriteJSON(w, KindToHTTPStatus(domainErr.Kind), response)
		return
	}

	json.WriteJSON(w, http.StatusInternalServerError, map[string]any{
		"error":     string(dErrors.KindInternal),
		"retryable": false,
	})
}

// KindToHTTPStatus translates pipeline error kinds to HTTP status codes.
func KindToHTTPStatus(kind dErrors.Kind) int {
	switch kind {
	case dErrors.KindInvalidInput:
		return http.StatusBadRequest
	case dErrors.KindNoMatch, dErrors.KindQualityGateFailed,
		dErrors.KindFeatureApplicationFailed, dErrors.KindFeatureVerificationFailed:
		return http.StatusUnprocessableEntity
	case dErrors.KindRegistryUnreachable:
		return http.StatusServiceUnavailable
	case dErrors.KindAnchorFailed:
		return http.StatusBadGateway
	case dErrors.KindConfigurationError, dErrors.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
