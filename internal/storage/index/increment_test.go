package index

import (
	"bytes"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementBytes(t *testing.T) {
	tests := []struct {
		in       []byte
		expected []byte
	}{
		{[]byte("AB"), []byte("AC")},
		{[]byte{0x01, 0xFF}, []byte{0x02, 0x00}},
		{[]byte{0x01, 0xFF, 0xFF}, []byte{0x02, 0x00, 0x00}},
		{[]byte{0x00}, []byte{0x01}},
		{[]byte{0xFF, 0xFF}, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IncrementBytes(tt.in), "%x", tt.in)
	}
}

func TestIncrementBytesDoesNotModifyInput(t *testing.T) {
	in := []byte{0x10, 0xFF}
	IncrementBytes(in)
	assert.Equal(t, []byte{0x10, 0xFF}, in)
}

// The increment of a prefix is the next byte string of equal length, so no
// string of that length lies strictly between the two.
func TestIncrementBytesIsImmediateSuccessor(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		p := make([]byte, 1+rng.Intn(6))
		rng.Read(p)
		if bytes.Count(p, []byte{0xFF}) == len(p) {
			continue
		}
		inc := IncrementBytes(p)
		assert.Len(t, inc, len(p))
		assert.Equal(t, 1, bytes.Compare(inc, p))

		diff := new(big.Int).Sub(new(big.Int).SetBytes(inc), new(big.Int).SetBytes(p))
		assert.Equal(t, int64(1), diff.Int64(), "%x -> %x", p, inc)
	}
}
