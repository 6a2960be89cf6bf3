package entry

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/ber"
)

// Format flags stored in the first byte of an encoded entry.
const (
	formatPlain  byte = 0x00
	formatSnappy byte = 0x01
)

// ErrUnknownFormat is returned when an encoded entry has an unknown format flag.
var ErrUnknownFormat = errors.New("entry: unknown encoding format")

// Codec serializes entries for the id2entry table.
//
// The body is a BER SEQUENCE of the DN followed by a SEQUENCE of
// (attribute name, SET of values) pairs in attribute name order.
type Codec struct {
	// Compress enables snappy compression of the encoded body.
	Compress bool
}

// Encode serializes e.
func (c Codec) Encode(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, errors.New("entry: cannot encode nil entry")
	}
	enc := ber.NewBEREncoder(256)
	enc.WriteSequence(func(s *ber.BEREncoder) {
		s.WriteOctetString([]byte(e.DN))
		s.WriteSequence(func(attrs *ber.BEREncoder) {
			for _, name := range e.AttributeNames() {
				values := e.Attributes[name]
				attrs.WriteSequence(func(a *ber.BEREncoder) {
					a.WriteOctetString([]byte(name))
					a.WriteSet(func(set *ber.BEREncoder) {
						for _, v := range values {
							set.WriteOctetString(v)
						}
					})
				})
			}
		})
	})

	body := enc.Bytes()
	if !c.Compress {
		return append([]byte{formatPlain}, body...), nil
	}
	compressed := snappy.Encode(nil, body)
	return append([]byte{formatSnappy}, compressed...), nil
}

// Decode parses an encoded entry. Both plain and compressed encodings are
// accepted regardless of the Compress setting.
func (c Codec) Decode(data []byte) (*Entry, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrUnknownFormat, "empty value")
	}
	body := data[1:]
	switch data[0] {
	case formatPlain:
	case formatSnappy:
		var err error
		body, err = snappy.Decode(nil, body)
		if err != nil {
			return nil, errors.Wrap(err, "entry: decompress")
		}
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "flag 0x%02x", data[0])
	}

	seq, err := ber.NewBERDecoder(body).ReadSequenceContents()
	if err != nil {
		return nil, errors.Wrap(err, "entry: decode")
	}
	dn, err := seq.ReadOctetString()
	if err != nil {
		return nil, errors.Wrap(err, "entry: decode dn")
	}
	e := NewEntry(string(dn))

	attrs, err := seq.ReadSequenceContents()
	if err != nil {
		return nil, errors.Wrap(err, "entry: decode attributes")
	}
	for attrs.Remaining() > 0 {
		a, err := attrs.ReadSequenceContents()
		if err != nil {
			return nil, errors.Wrap(err, "entry: decode attribute")
		}
		name, err := a.ReadOctetString()
		if err != nil {
			return nil, errors.Wrap(err, "entry: decode attribute name")
		}
		set, err := a.ReadSetContents()
		if err != nil {
			return nil, errors.Wrapf(err, "entry: decode values of %s", name)
		}
		var values [][]byte
		for set.Remaining() > 0 {
			v, err := set.ReadOctetString()
			if err != nil {
				return nil, errors.Wrapf(err, "entry: decode value of %s", name)
			}
			values = append(values, v)
		}
		e.Attributes[string(name)] = values
	}
	return e, nil
}
