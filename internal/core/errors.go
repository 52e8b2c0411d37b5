package core

import (
	"errors"
	"fmt"
)

// Error codes for embedding operations. The batcher's recovery strategy is
// keyed on these: throttling is retried with backoff, payload overflows are
// retried at half the batch size.
const (
	ErrCodeThrottled       = "Throttled"
	ErrCodePayloadTooLarge = "PayloadTooLarge"
	ErrCodeAPIError        = "APIError"
)

// EmbeddingError classifies a failure of the external embedding endpoint.
type EmbeddingError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding.%s: %s: %s", e.Op, e.Code, e.Message)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

func NewEmbeddingError(op, code, message string, err error) *EmbeddingError {
	return &EmbeddingError{Op: op, Code: code, Message: message, Err: err}
}

// IsThrottled reports whether err is a rate-limit rejection from the
// embedding endpoint.
func IsThrottled(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee) && ee.Code == ErrCodeThrottled
}

// IsPayloadTooLarge reports whether err is a token/payload-limit rejection.
func IsPayloadTooLarge(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee) && ee.Code == ErrCodePayloadTooLarge
}
