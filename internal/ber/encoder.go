package ber

// BEREncoder appends BER encoded values to a buffer.
type BEREncoder struct {
	buf []byte
}

// NewBEREncoder creates a new BER encoder with an optional initial capacity.
func NewBEREncoder(capacity int) *BEREncoder {
	if capacity <= 0 {
		capacity = 64
	}
	return &BEREncoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes.
func (e *BEREncoder) Bytes() []byte {
	return e.buf
}

// Len returns the current length of encoded data.
func (e *BEREncoder) Len() int {
	return len(e.buf)
}

// Reset clears the encoder buffer for reuse.
func (e *BEREncoder) Reset() {
	e.buf = e.buf[:0]
}

// WriteOctetString writes a primitive OCTET STRING.
func (e *BEREncoder) WriteOctetString(v []byte) {
	e.writeHeader(ClassUniversal|TypePrimitive|TagOctetString, len(v))
	e.buf = append(e.buf, v...)
}

// WriteInteger writes a non-negative INTEGER in minimal two's complement form.
func (e *BEREncoder) WriteInteger(v uint64) {
	var tmp [9]byte
	n := len(tmp)
	for {
		n--
		tmp[n] = byte(v)
		v >>= 8
		if v == 0 {
			break
		}
	}
	if tmp[n]&0x80 != 0 {
		n--
		tmp[n] = 0
	}
	e.writeHeader(ClassUniversal|TypePrimitive|TagInteger, len(tmp)-n)
	e.buf = append(e.buf, tmp[n:]...)
}

// WriteSequence writes a SEQUENCE whose contents are produced by fn.
func (e *BEREncoder) WriteSequence(fn func(*BEREncoder)) {
	e.writeConstructed(TagSequence, fn)
}

// WriteSet writes a SET whose contents are produced by fn.
func (e *BEREncoder) WriteSet(fn func(*BEREncoder)) {
	e.writeConstructed(TagSet, fn)
}

func (e *BEREncoder) writeConstructed(tag int, fn func(*BEREncoder)) {
	inner := NewBEREncoder(0)
	fn(inner)
	e.writeHeader(ClassUniversal|TypeConstructed|tag, inner.Len())
	e.buf = append(e.buf, inner.buf...)
}

func (e *BEREncoder) writeHeader(tag, length int) {
	e.buf = append(e.buf, byte(tag))
	if length <= MaxShortFormLength {
		e.buf = append(e.buf, byte(length))
		return
	}
	var tmp [maxLengthBytes]byte
	n := len(tmp)
	for length > 0 {
		n--
		tmp[n] = byte(length)
		length >>= 8
	}
	e.buf = append(e.buf, byte(LengthLongFormBit|(len(tmp)-n)))
	e.buf = append(e.buf, tmp[n:]...)
}
