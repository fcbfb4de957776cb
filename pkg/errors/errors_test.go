package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrMessageNotFound, http.StatusNotFound},
		{ErrNoActiveCall, http.StatusNotFound},
		{ErrInvalidToken, http.StatusUnauthorized},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrNotAMember, http.StatusForbidden},
		{ErrNotAuthorized, http.StatusForbidden},
		{ErrNotInCall, http.StatusForbidden},
		{ErrBadRequest, http.StatusBadRequest},
		{ErrCallInProgress, http.StatusConflict},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("load history: %w", ErrNotAMember), http.StatusForbidden},
	}

	for _, tc := range cases {
		if got := HTTPStatusFromError(tc.err); got != tc.want {
			t.Errorf("HTTPStatusFromError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
