// Package ber implements the subset of ASN.1 BER (ITU-T X.690) used to
// serialize directory entries: definite-length octet strings, sequences and
// sets with single-byte universal tags.
package ber

// Only the universal class is written. Its class bits are zero.
const ClassUniversal = 0x00

// Bit 6 of the tag byte separates primitive from constructed encodings.
const (
	TypePrimitive   = 0x00
	TypeConstructed = 0x20
)

// Universal tag numbers
const (
	TagInteger     = 0x02
	TagOctetString = 0x04
	TagSequence    = 0x10
	TagSet         = 0x11
)

const (
	// LengthLongFormBit marks a long form length octet.
	LengthLongFormBit = 0x80
	// MaxShortFormLength is the largest length written in a single octet.
	MaxShortFormLength = 127
	// maxLengthBytes bounds long-form lengths to 4 octets.
	maxLengthBytes = 4
)
