// Package stream publishes committed entry changes to in-process
// subscribers. Subscribers select events by scope and search filter and
// may resume from a token while it is still held by the replay buffer.
package stream

import (
	"time"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// Operation is the kind of change an event reports.
type Operation uint8

const (
	// OpAdd reports a new entry.
	OpAdd Operation = iota + 1
	// OpModify reports a change to the attributes of an entry.
	OpModify
	// OpDelete reports a removed entry.
	OpDelete
	// OpModifyDN reports a renamed or moved entry.
	OpModifyDN
)

// String returns the string representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpModifyDN:
		return "modifyDN"
	default:
		return "unknown"
	}
}

// ChangeEvent is one committed change.
type ChangeEvent struct {
	// Token increases by one for every published event.
	Token     uint64
	Operation Operation
	// DN is the normalized DN after the change.
	DN string
	// OldDN is set for OpModifyDN.
	OldDN string
	// Entry is the entry after the change, or the removed entry for
	// OpDelete. It is shared and must not be modified.
	Entry *entry.Entry
	Time  time.Time
}
