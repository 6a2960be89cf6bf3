package schema

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/words"
)

// normalizePhonetic builds the approximate key of a value: the phonetic
// code of every word, space separated. Words are found with UAX #29 word
// segmentation.
func normalizePhonetic(v []byte) ([]byte, error) {
	toks := words.FromString(foldString(string(v)))
	var codes []string
	for toks.Next() {
		if code := phoneticCode(toks.Value()); code != "" {
			codes = append(codes, code)
		}
	}
	return []byte(strings.Join(codes, " ")), nil
}

func isVowel(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// phoneticCode implements a reduced metaphone: consonant sounds are mapped
// to representative letters, vowels are kept only in first position.
func phoneticCode(word string) string {
	w := make([]byte, 0, len(word))
	for i := 0; i < len(word); i++ {
		c := word[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c >= 'A' && c <= 'Z' {
			w = append(w, c)
		} else if c >= '0' && c <= '9' {
			w = append(w, c)
		}
	}
	if len(w) == 0 {
		return ""
	}

	switch {
	case hasPrefix(w, "KN"), hasPrefix(w, "GN"), hasPrefix(w, "PN"), hasPrefix(w, "AE"), hasPrefix(w, "WR"):
		w = w[1:]
	case w[0] == 'X':
		w[0] = 'S'
	case hasPrefix(w, "WH"):
		w = append(w[:1], w[2:]...)
	}

	at := func(i int) byte {
		if i < 0 || i >= len(w) {
			return 0
		}
		return w[i]
	}

	var out strings.Builder
	for i := 0; i < len(w); i++ {
		c := w[i]
		if c != 'C' && i > 0 && c == w[i-1] {
			continue
		}
		next := at(i + 1)
		switch {
		case c >= '0' && c <= '9':
			out.WriteByte(c)
		case isVowel(c):
			if i == 0 {
				out.WriteByte(c)
			}
		case c == 'B':
			if !(i == len(w)-1 && at(i-1) == 'M') {
				out.WriteByte('B')
			}
		case c == 'C':
			switch {
			case next == 'I' && at(i+2) == 'A', next == 'H':
				out.WriteByte('X')
			case next == 'I' || next == 'E' || next == 'Y':
				if at(i-1) != 'S' {
					out.WriteByte('S')
				}
			default:
				out.WriteByte('K')
			}
		case c == 'D':
			if next == 'G' && (at(i+2) == 'E' || at(i+2) == 'I' || at(i+2) == 'Y') {
				out.WriteByte('J')
			} else {
				out.WriteByte('T')
			}
		case c == 'G':
			switch {
			case next == 'H' && !isVowel(at(i+2)):
			case next == 'N':
			case next == 'I' || next == 'E' || next == 'Y':
				out.WriteByte('J')
			default:
				out.WriteByte('K')
			}
		case c == 'H':
			prev := at(i - 1)
			if isVowel(next) && prev != 'C' && prev != 'G' && prev != 'P' && prev != 'S' && prev != 'T' {
				out.WriteByte('H')
			}
		case c == 'K':
			if at(i-1) != 'C' {
				out.WriteByte('K')
			}
		case c == 'P':
			if next == 'H' {
				out.WriteByte('F')
			} else {
				out.WriteByte('P')
			}
		case c == 'Q':
			out.WriteByte('K')
		case c == 'S':
			if next == 'H' || (next == 'I' && (at(i+2) == 'O' || at(i+2) == 'A')) {
				out.WriteByte('X')
			} else {
				out.WriteByte('S')
			}
		case c == 'T':
			switch {
			case next == 'I' && (at(i+2) == 'O' || at(i+2) == 'A'):
				out.WriteByte('X')
			case next == 'H':
				out.WriteByte('0')
			case next == 'C' && at(i+2) == 'H':
			default:
				out.WriteByte('T')
			}
		case c == 'V':
			out.WriteByte('F')
		case c == 'W', c == 'Y':
			if isVowel(next) {
				out.WriteByte(c)
			}
		case c == 'X':
			out.WriteString("KS")
		case c == 'Z':
			out.WriteByte('S')
		default:
			// F, J, L, M, N, R
			out.WriteByte(c)
		}
	}
	return out.String()
}

func hasPrefix(w []byte, p string) bool {
	return len(w) >= len(p) && string(w[:len(p)]) == p
}
