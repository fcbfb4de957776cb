package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotAMember       = errors.New("not a member of this group")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrBadRequest       = errors.New("bad request")
	ErrInternalServer   = errors.New("internal server error")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrMessageNotFound  = errors.New("message not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrCallInProgress   = errors.New("call already in progress")
	ErrNoActiveCall     = errors.New("no active call")
	ErrNotInCall        = errors.New("not a call participant")
	ErrPeerNotConnected = errors.New("peer connection not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrGroupNotFound), errors.Is(err, ErrNoActiveCall):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNotInCall):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrCallInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
