package backend

import (
	"time"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// Operational attribute names per RFC 4512 and RFC 4530.
const (
	// AttrCreateTimestamp is the creation timestamp of an entry.
	AttrCreateTimestamp = "createTimestamp"
	// AttrModifyTimestamp is the last modification timestamp of an entry.
	AttrModifyTimestamp = "modifyTimestamp"
	// AttrEntryUUID is the unique identifier of the entry.
	AttrEntryUUID = "entryUUID"
	// AttrHasSubordinates indicates whether the entry has children.
	AttrHasSubordinates = "hasSubordinates"
	// AttrNumSubordinates is the count of immediate children.
	AttrNumSubordinates = "numSubordinates"
)

var now = func() time.Time { return time.Now().UTC() }

// setCreateAttrs stamps a new entry. An entryUUID supplied by the caller,
// for example from an import, is kept.
func setCreateAttrs(e *entry.Entry) {
	ts := FormatTimestamp(now())
	if !e.HasAttribute(AttrCreateTimestamp) {
		e.SetStringAttribute(AttrCreateTimestamp, ts)
	}
	e.SetStringAttribute(AttrModifyTimestamp, ts)
	if !e.HasAttribute(AttrEntryUUID) {
		e.SetStringAttribute(AttrEntryUUID, GenerateUUID())
	}
}

// modifyTimestampMod is the modification appended to every modify so that
// indexes on modifyTimestamp stay current.
func modifyTimestampMod() entry.Modification {
	return entry.Modification{
		Op:        entry.ModReplace,
		Attribute: AttrModifyTimestamp,
		Values:    [][]byte{[]byte(FormatTimestamp(now()))},
	}
}

// setSubordinateAttrs adds the computed hasSubordinates and numSubordinates
// attributes to a search result. A negative count means the count is unknown.
func setSubordinateAttrs(e *entry.Entry, num int) {
	if num != 0 {
		e.SetStringAttribute(AttrHasSubordinates, "TRUE")
	} else {
		e.SetStringAttribute(AttrHasSubordinates, "FALSE")
	}
	if num >= 0 {
		e.SetStringAttribute(AttrNumSubordinates, formatInt(num))
	}
}

// FormatTimestamp formats a time as an LDAP GeneralizedTime string,
// e.g. "20260218103000Z".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("20060102150405Z")
}

// ParseTimestamp parses an LDAP GeneralizedTime string. It returns the zero
// time if parsing fails.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse("20060102150405Z", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
