package bithumb

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx or non-"0000" response from Bithumb. Transient
// errors (rate limits, 5xx, network) are retried; auth and validation
// failures surface immediately.
type APIError struct {
	Status    string
	Message   string
	Transient bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bithumb api error %s: %s", e.Status, e.Message)
}

// Bithumb status codes. 5100-5600 are request/auth/validation failures.
const (
	statusOK           = "0000"
	statusBadRequest   = "5100"
	statusNotMember    = "5200"
	statusAuthFailed   = "5300"
	statusTimeout      = "5400"
	statusInvalidParam = "5500"
	statusUnknown      = "5600"
)

func newStatusError(status, message string) *APIError {
	transient := false
	if status == statusTimeout {
		transient = true
	}
	return &APIError{Status: status, Message: message, Transient: transient}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	// network-level failures (timeouts, resets) arrive as plain errors
	return err != nil
}
