package backend

import (
	"fmt"

	"github.com/pkg/errors"
)

// Backend errors.
var (
	// ErrEntryNotFound is returned when an entry or one of its ancestors does not exist.
	ErrEntryNotFound = errors.New("backend: entry not found")
	// ErrEntryExists is returned when an entry already exists.
	ErrEntryExists = errors.New("backend: entry already exists")
	// ErrInvalidDN is returned when a DN cannot be parsed.
	ErrInvalidDN = errors.New("backend: invalid DN")
	// ErrInvalidEntry is returned when an entry is nil or malformed.
	ErrInvalidEntry = errors.New("backend: invalid entry")
	// ErrNotAllowedOnNonLeaf is returned when deleting an entry that has children.
	ErrNotAllowedOnNonLeaf = errors.New("backend: operation not allowed on non-leaf entry")
	// ErrNotAllowedOnRDN is returned when a modification removes an RDN value.
	ErrNotAllowedOnRDN = errors.New("backend: operation not allowed on RDN")
	// ErrAdminLimitExceeded is returned when a subtree delete exceeds the size limit.
	ErrAdminLimitExceeded = errors.New("backend: administrative limit exceeded")
	// ErrUnwillingToPerform is returned for operations the container refuses,
	// such as moving an entry below itself.
	ErrUnwillingToPerform = errors.New("backend: unwilling to perform")
	// ErrConstraintViolation is returned when a modification cannot be applied.
	ErrConstraintViolation = errors.New("backend: constraint violation")
	// ErrIndexNotFound is returned for administrative calls on an attribute
	// that has no index.
	ErrIndexNotFound = errors.New("backend: index not found")
	// ErrClosed is returned after the container has been closed.
	ErrClosed = errors.New("backend: container closed")
)

// OperationError describes a failed directory operation. It unwraps to one
// of the backend sentinel errors.
type OperationError struct {
	Op  string
	DN  string
	Err error
	// MatchedDN is the deepest existing ancestor when Err is ErrEntryNotFound.
	MatchedDN string
}

func (e *OperationError) Error() string {
	if e.MatchedDN != "" {
		return fmt.Sprintf("%s %q: %v (matched %q)", e.Op, e.DN, e.Err, e.MatchedDN)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.DN, e.Err)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error { return e.Err }

func opError(op, dn string, err error) error {
	return &OperationError{Op: op, DN: dn, Err: err}
}

// MatchedDN returns the matched DN carried by err, if any.
func MatchedDN(err error) string {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.MatchedDN
	}
	return ""
}
