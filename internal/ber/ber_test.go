package ber

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOctetStringShortAndLongForm(t *testing.T) {
	e := NewBEREncoder(0)
	e.WriteOctetString([]byte("abc"))
	assert.Equal(t, []byte{0x04, 0x03, 'a', 'b', 'c'}, e.Bytes())

	long := bytes.Repeat([]byte{'x'}, 300)
	e.Reset()
	e.WriteOctetString(long)
	assert.Equal(t, []byte{0x04, 0x82, 0x01, 0x2C}, e.Bytes()[:4])

	d := NewBERDecoder(e.Bytes())
	v, err := d.ReadOctetString()
	require.NoError(t, err)
	assert.Equal(t, long, v)
	assert.Equal(t, 0, d.Remaining())
}

func TestInteger(t *testing.T) {
	for _, n := range []uint64{0, 1, 127, 128, 255, 256, 1 << 40, ^uint64(0)} {
		e := NewBEREncoder(0)
		e.WriteInteger(n)
		got, err := NewBERDecoder(e.Bytes()).ReadInteger()
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}

	e := NewBEREncoder(0)
	e.WriteInteger(128)
	assert.Equal(t, []byte{0x02, 0x02, 0x00, 0x80}, e.Bytes())
}

func TestNestedConstructed(t *testing.T) {
	e := NewBEREncoder(0)
	e.WriteSequence(func(s *BEREncoder) {
		s.WriteOctetString([]byte("dn"))
		s.WriteSet(func(set *BEREncoder) {
			set.WriteOctetString([]byte("v1"))
			set.WriteOctetString([]byte("v2"))
		})
	})

	seq, err := NewBERDecoder(e.Bytes()).ReadSequenceContents()
	require.NoError(t, err)
	dn, err := seq.ReadOctetString()
	require.NoError(t, err)
	assert.Equal(t, "dn", string(dn))

	set, err := seq.ReadSetContents()
	require.NoError(t, err)
	var values []string
	for set.Remaining() > 0 {
		v, err := set.ReadOctetString()
		require.NoError(t, err)
		values = append(values, string(v))
	}
	assert.Equal(t, []string{"v1", "v2"}, values)
}

func TestDecodeErrors(t *testing.T) {
	_, err := NewBERDecoder(nil).ReadOctetString()
	assert.True(t, errors.Is(err, ErrUnexpectedEOF))

	_, err = NewBERDecoder([]byte{0x04, 0x05, 'a'}).ReadOctetString()
	assert.True(t, errors.Is(err, ErrUnexpectedEOF))

	_, err = NewBERDecoder([]byte{0x02, 0x01, 0x00}).ReadOctetString()
	assert.True(t, errors.Is(err, ErrTagMismatch))

	_, err = NewBERDecoder([]byte{0x04, 0x80}).ReadOctetString()
	assert.True(t, errors.Is(err, ErrInvalidLength))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Offset)
}
