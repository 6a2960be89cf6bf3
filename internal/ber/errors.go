package ber

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel causes of a DecodeError.
var (
	ErrUnexpectedEOF = errors.New("ber: unexpected end of data")
	ErrInvalidLength = errors.New("ber: invalid length encoding")
	ErrTagMismatch   = errors.New("ber: tag mismatch")
)

// DecodeError reports where in the input decoding failed. Err wraps one
// of the sentinel errors above.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ber: offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeError(offset int, message string, cause error) *DecodeError {
	return &DecodeError{Offset: offset, Err: errors.WithMessage(cause, message)}
}
