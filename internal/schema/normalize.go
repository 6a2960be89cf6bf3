package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// foldString applies NFKC and full Unicode case folding.
func foldString(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// collapseSpaces replaces runs of whitespace by a single space. When trim is
// set, leading and trailing whitespace is removed.
func collapseSpaces(s string, trim bool) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			space = true
			continue
		}
		if space && (b.Len() > 0 || !trim) {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	if space && !trim {
		b.WriteByte(' ')
	}
	return b.String()
}

func normalizeCaseIgnore(v []byte) ([]byte, error) {
	return []byte(collapseSpaces(foldString(string(v)), true)), nil
}

func normalizeCaseIgnoreElement(v []byte) ([]byte, error) {
	return []byte(collapseSpaces(foldString(string(v)), false)), nil
}

func normalizeCaseExact(v []byte) ([]byte, error) {
	return []byte(collapseSpaces(norm.NFKC.String(string(v)), true)), nil
}

func normalizeCaseExactElement(v []byte) ([]byte, error) {
	return []byte(collapseSpaces(norm.NFKC.String(string(v)), false)), nil
}

func normalizeOctetString(v []byte) ([]byte, error) {
	return append([]byte(nil), v...), nil
}

func normalizeNumericString(v []byte) ([]byte, error) {
	out := make([]byte, 0, len(v))
	for _, c := range v {
		switch {
		case c == ' ':
		case c >= '0' && c <= '9':
			out = append(out, c)
		default:
			return nil, errors.Wrapf(ErrInvalidValue, "numeric string %q", v)
		}
	}
	return out, nil
}

func normalizeTelephoneNumber(v []byte) ([]byte, error) {
	out := make([]byte, 0, len(v))
	for _, c := range v {
		if c == ' ' || c == '-' {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func normalizeDN(v []byte) ([]byte, error) {
	dn, err := entry.NormalizeDN(string(v))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidValue, err.Error())
	}
	return []byte(dn), nil
}

// normalizeInteger encodes a decimal integer so that byte order equals
// numeric order: a sign class byte, a length byte and the digits. Negative
// magnitudes are complemented so that larger magnitudes sort first.
func normalizeInteger(v []byte) ([]byte, error) {
	s := strings.TrimSpace(string(v))
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if s == "" {
		return nil, errors.Wrapf(ErrInvalidValue, "integer %q", v)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, errors.Wrapf(ErrInvalidValue, "integer %q", v)
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return []byte{0x01}, nil
	}
	if len(s) > 255 {
		return nil, errors.Wrapf(ErrInvalidValue, "integer %q too long", v)
	}
	if !neg {
		return append([]byte{0x02, byte(len(s))}, s...), nil
	}
	out := make([]byte, 2, len(s)+2)
	out[0] = 0x00
	out[1] = byte(255 - len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, '9'-s[i]+'0')
	}
	return out, nil
}

var generalizedTimeLayouts = []string{
	"20060102150405Z0700",
	"20060102150405.999999999Z0700",
	"200601021504Z0700",
	"2006010215Z0700",
}

// normalizeGeneralizedTime converts to a fixed-width UTC representation.
func normalizeGeneralizedTime(v []byte) ([]byte, error) {
	s := strings.TrimSpace(string(v))
	for _, layout := range generalizedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ms := t.UTC().Nanosecond() / int(time.Millisecond)
			return []byte(t.UTC().Format("20060102150405") + "." + leftPad(strconv.Itoa(ms), 3) + "Z"), nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidValue, "generalized time %q", v)
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}
