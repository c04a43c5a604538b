package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx response from the backend. Detail carries the
// backend-provided message when the body could be decoded.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend error (%d)", e.StatusCode)
}

// AsError unwraps err into an *Error, or returns nil when err is not one.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func statusIs(err error, code int) bool {
	apiErr := AsError(err)
	return apiErr != nil && apiErr.StatusCode == code
}

// IsNotFound reports a 404: the resource does not exist. Terminal for polling.
func IsNotFound(err error) bool { return statusIs(err, http.StatusNotFound) }

// IsUnauthorized reports a 401: credentials missing or rejected. Terminal
// for polling; stored credentials should be invalidated.
func IsUnauthorized(err error) bool { return statusIs(err, http.StatusUnauthorized) }

// IsConflict reports a 409: an optimistic-concurrency failure. The caller
// should refresh and retry against the newest state.
func IsConflict(err error) bool { return statusIs(err, http.StatusConflict) }

// IsValidation reports a 400: the request was rejected before execution
// (e.g. revising an already-approved plan).
func IsValidation(err error) bool { return statusIs(err, http.StatusBadRequest) }

// Detail returns the backend-provided message for err, or fallback when
// there is none.
func Detail(err error, fallback string) string {
	if apiErr := AsError(err); apiErr != nil && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
