package backup

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// LDIF errors.
var (
	ErrInvalidLDIF   = errors.New("backup: invalid LDIF")
	ErrMissingDN     = errors.New("backup: LDIF record without dn")
	ErrInvalidBase64 = errors.New("backup: invalid base64 value")
)

// maxLineLength is the column at which written lines are folded.
const maxLineLength = 76

// WriteEntry writes e as one LDIF content record followed by an empty
// line. Attributes are written in name order.
func WriteEntry(w io.Writer, e *entry.Entry) error {
	if err := writeLine(w, "dn", []byte(e.DN)); err != nil {
		return err
	}
	for _, name := range e.AttributeNames() {
		for _, v := range e.Values(name) {
			if err := writeLine(w, name, v); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeLine(w io.Writer, attr string, value []byte) error {
	line := attr + ": " + string(value)
	if needsBase64Encoding(value) {
		line = attr + ":: " + base64.StdEncoding.EncodeToString(value)
	}
	for len(line) > maxLineLength {
		if _, err := io.WriteString(w, line[:maxLineLength]+"\n "); err != nil {
			return err
		}
		line = line[maxLineLength:]
	}
	_, err := io.WriteString(w, line+"\n")
	return err
}

// needsBase64Encoding reports whether value must be base64 encoded.
// According to RFC 2849, values need base64 encoding if they:
// - Contain non-printable characters (< 0x20 or > 0x7E)
// - Start with a space, colon, or less-than sign
// - End with a space
func needsBase64Encoding(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	switch value[0] {
	case ' ', ':', '<':
		return true
	}
	if value[len(value)-1] == ' ' {
		return true
	}
	for _, b := range value {
		if b < 0x20 || b > 0x7E {
			return true
		}
	}
	return false
}

// ParseLDIF reads LDIF content records. Folded lines, comments, base64
// values and an optional version line are understood; change records are
// rejected.
func ParseLDIF(r io.Reader) ([]*entry.Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		entries []*entry.Entry
		current *entry.Entry
		pending string
		lineNo  int
	)
	flush := func() error {
		if pending == "" {
			return nil
		}
		line := pending
		pending = ""
		attr, value, err := splitLine(line)
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
		switch {
		case strings.EqualFold(attr, "dn"):
			if current != nil {
				return errors.Wrapf(ErrInvalidLDIF, "line %d: second dn in record", lineNo)
			}
			if len(value) == 0 {
				return errors.Wrapf(ErrMissingDN, "line %d", lineNo)
			}
			current = entry.NewEntry(string(value))
		case current == nil && strings.EqualFold(attr, "version"):
		case current == nil:
			return errors.Wrapf(ErrMissingDN, "line %d", lineNo)
		case strings.EqualFold(attr, "changetype"):
			return errors.Wrapf(ErrInvalidLDIF, "line %d: change records are not supported", lineNo)
		default:
			current.AddValues(attr, value)
		}
		return nil
	}
	endRecord := func() {
		if current != nil {
			entries = append(entries, current)
			current = nil
		}
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, " "):
			if pending == "" {
				return nil, errors.Wrapf(ErrInvalidLDIF, "line %d: continuation without a line", lineNo)
			}
			pending += line[1:]
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			endRecord()
			continue
		}
		pending = line
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "backup: read LDIF")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	endRecord()
	return entries, nil
}

// splitLine splits "attr: value" or "attr:: base64".
func splitLine(line string) (string, []byte, error) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", nil, errors.Wrap(ErrInvalidLDIF, fmt.Sprintf("missing colon in %q", line))
	}
	attr := line[:colon]
	rest := line[colon+1:]
	if strings.HasPrefix(rest, ":") {
		v, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest[1:]))
		if err != nil {
			return "", nil, errors.Wrap(ErrInvalidBase64, err.Error())
		}
		return attr, v, nil
	}
	if strings.HasPrefix(rest, "<") {
		return "", nil, errors.Wrap(ErrInvalidLDIF, "URL values are not supported")
	}
	return attr, []byte(strings.TrimLeft(rest, " ")), nil
}
