package index

import (
	"encoding/binary"
	"strconv"

	"github.com/pkg/errors"
)

// EntryIDSize is the encoded size of an EntryID.
const EntryIDSize = 8

// ErrInvalidEntryID is returned when decoding bytes that are not an EntryID.
var ErrInvalidEntryID = errors.New("index: invalid entry id encoding")

// EntryID identifies a stored entry. IDs are assigned in increasing order
// and never reused within a container.
type EntryID uint64

// Bytes returns the 8-byte big-endian encoding of id.
func (id EntryID) Bytes() []byte {
	b := make([]byte, EntryIDSize)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// String returns the decimal form of id.
func (id EntryID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// EntryIDFromBytes decodes an 8-byte big-endian EntryID.
func EntryIDFromBytes(b []byte) (EntryID, error) {
	if len(b) != EntryIDSize {
		return 0, errors.Wrapf(ErrInvalidEntryID, "length %d", len(b))
	}
	return EntryID(binary.BigEndian.Uint64(b)), nil
}
