package index

// IncrementBytes returns the smallest byte string of the same length that
// is greater than every string starting with prefix, so that
// [prefix, IncrementBytes(prefix)) covers exactly the keys starting with
// prefix. Trailing 0xFF bytes carry leftwards. A prefix made only of 0xFF
// bytes has no such bound and yields nil, meaning unbounded.
func IncrementBytes(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out
		}
		out[i] = 0x00
	}
	return nil
}
