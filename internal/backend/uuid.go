package backend

import (
	"strconv"

	"github.com/google/uuid"
)

// GenerateUUID returns a random version 4 UUID in its canonical string form.
func GenerateUUID() string {
	return uuid.NewString()
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}
