// Package apierror maps errors to the canonical wire envelope and HTTP
// status codes.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/deckroom/deckroom/pkg/core"
	"github.com/deckroom/deckroom/pkg/core/transcribe"
	"github.com/deckroom/deckroom/pkg/store"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

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

	// Session lifecycle sentinels.
	if errors.Is(err, core.ErrSessionNotFound) || errors.Is(err, store.ErrNotFound) {
		return &core.Error{
			Type:      core.ErrNotFound,
			Message:   "not found",
			RequestID: requestID,
		}, http.StatusNotFound
	}
	if errors.Is(err, core.ErrSessionInactive) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "session is not active",
			Code:      "session_inactive",
			RequestID: requestID,
		}, http.StatusConflict
	}
	if errors.Is(err, core.ErrProviderKeyMissing) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "transcription provider key missing",
			Code:      "provider_key_missing",
			RequestID: requestID,
		}, http.StatusPreconditionFailed
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	// Transcription provider errors.
	var provErr *transcribe.Error
	if errors.As(err, &provErr) && provErr != nil {
		errType := core.ErrProvider
		if provErr.Status == http.StatusTooManyRequests {
			errType = core.ErrRateLimit
		}
		return &core.Error{
			Type:      errType,
			Message:   provErr.Message,
			RequestID: requestID,
		}, statusFromType(errType)
	}

	// Unknown errors: treat as internal (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrProvider:
		return http.StatusBadGateway
	case core.ErrAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
