package univapay

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAppToken = errors.New("UNIVAPAY_APP_TOKEN is missing")
	ErrCircuitOpen     = errors.New("univapay circuit breaker is open")
)

// APIError is returned for requests the gateway rejected, for transient
// failures that outlived the retry budget, and for invalid caller input that
// never left the process (Status == 0, Err == nil).
type APIError struct {
	Message string
	Status  int
	Body    any
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status=%d, body=%v)", e.Message, e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func invalidInput(msg string) *APIError {
	return &APIError{Message: msg}
}
