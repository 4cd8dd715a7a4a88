package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError maps any error onto the canonical envelope and an HTTP status.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, StatusFromType(coreErr.Type)
	}

	// Unknown errors: internal bucket, no detail leakage.
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

// StatusFromType maps the error taxonomy onto HTTP statuses. Quota maps to
// 429 so clients back off; persistence maps to 503 because the store is a
// dependency outage, not a caller mistake.
func StatusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest, core.ErrDecode:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrQuota:
		return http.StatusTooManyRequests
	case core.ErrDevice:
		return http.StatusConflict
	case core.ErrPersistence:
		return http.StatusServiceUnavailable
	case core.ErrTransport:
		return http.StatusBadGateway
	case core.ErrAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
