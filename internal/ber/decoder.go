package ber

// BERDecoder reads BER encoded values from a byte slice.
type BERDecoder struct {
	data   []byte
	offset int
}

// NewBERDecoder creates a decoder over data.
func NewBERDecoder(data []byte) *BERDecoder {
	return &BERDecoder{data: data}
}

// Offset returns the current read position.
func (d *BERDecoder) Offset() int {
	return d.offset
}

// Remaining returns the number of unread bytes.
func (d *BERDecoder) Remaining() int {
	return len(d.data) - d.offset
}

// ReadOctetString reads a primitive OCTET STRING.
func (d *BERDecoder) ReadOctetString() ([]byte, error) {
	v, err := d.readValue(ClassUniversal | TypePrimitive | TagOctetString)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// ReadInteger reads a non-negative INTEGER.
func (d *BERDecoder) ReadInteger() (uint64, error) {
	start := d.offset
	v, err := d.readValue(ClassUniversal | TypePrimitive | TagInteger)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 || len(v) > 9 || v[0]&0x80 != 0 {
		return 0, decodeError(start, "unsupported integer encoding", ErrInvalidLength)
	}
	var n uint64
	for _, b := range v {
		n = n<<8 | uint64(b)
	}
	return n, nil
}

// ReadSequenceContents reads a SEQUENCE and returns a decoder over its contents.
func (d *BERDecoder) ReadSequenceContents() (*BERDecoder, error) {
	v, err := d.readValue(ClassUniversal | TypeConstructed | TagSequence)
	if err != nil {
		return nil, err
	}
	return NewBERDecoder(v), nil
}

// ReadSetContents reads a SET and returns a decoder over its contents.
func (d *BERDecoder) ReadSetContents() (*BERDecoder, error) {
	v, err := d.readValue(ClassUniversal | TypeConstructed | TagSet)
	if err != nil {
		return nil, err
	}
	return NewBERDecoder(v), nil
}

func (d *BERDecoder) readValue(tag int) ([]byte, error) {
	start := d.offset
	if d.offset >= len(d.data) {
		return nil, decodeError(start, "cannot read tag", ErrUnexpectedEOF)
	}
	if got := int(d.data[d.offset]); got != tag {
		return nil, decodeError(start, "unexpected tag", ErrTagMismatch)
	}
	d.offset++

	length, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if d.offset+length > len(d.data) {
		return nil, decodeError(start, "truncated value", ErrUnexpectedEOF)
	}
	v := d.data[d.offset : d.offset+length]
	d.offset += length
	return v, nil
}

func (d *BERDecoder) readLength() (int, error) {
	start := d.offset
	if d.offset >= len(d.data) {
		return 0, decodeError(start, "cannot read length", ErrUnexpectedEOF)
	}
	first := d.data[d.offset]
	d.offset++

	// Short form: bit 8 is 0, bits 1-7 contain the length
	if first&LengthLongFormBit == 0 {
		return int(first), nil
	}

	n := int(first & 0x7F)
	if n == 0 || n > maxLengthBytes {
		return 0, decodeError(start, "unsupported length form", ErrInvalidLength)
	}
	if d.offset+n > len(d.data) {
		return 0, decodeError(start, "truncated length encoding", ErrUnexpectedEOF)
	}
	length := 0
	for i := 0; i < n; i++ {
		length = length<<8 | int(d.data[d.offset])
		d.offset++
	}
	if length < 0 {
		return 0, decodeError(start, "length value overflow", ErrInvalidLength)
	}
	return length, nil
}
