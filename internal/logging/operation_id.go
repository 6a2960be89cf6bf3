package logging

import "github.com/google/uuid"

// NewOperationID returns a time-ordered identifier for one directory
// operation. All retries of the operation share it.
func NewOperationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
