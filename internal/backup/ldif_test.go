package backup

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

func TestNeedsBase64Encoding(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"empty value", "", false},
		{"simple ASCII", "hello world", false},
		{"starts with space", " hello", true},
		{"starts with colon", ":hello", true},
		{"starts with less-than", "<hello", true},
		{"ends with space", "hello ", true},
		{"contains newline", "hello\nworld", true},
		{"contains NUL", "hello\x00world", true},
		{"UTF-8", "Jürgen", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsBase64Encoding([]byte(tt.value)))
		})
	}
}

func TestWriteEntry(t *testing.T) {
	e := entry.NewEntry("uid=jurgen,dc=example,dc=com")
	e.AddValues("uid", []byte("jurgen"))
	e.AddValues("cn", []byte("Jürgen"))
	e.AddValues("description", []byte(strings.Repeat("x", 100)))

	var buf bytes.Buffer
	require.NoError(t, WriteEntry(&buf, e))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "dn: uid=jurgen,dc=example,dc=com\ncn:: SsO8cmdlbg==\n"))
	assert.Contains(t, out, "\n xxxx")
	assert.True(t, strings.HasSuffix(out, "uid: jurgen\n\n"))

	parsed, err := ParseLDIF(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, e.DN, parsed[0].DN)
	assert.Equal(t, "Jürgen", string(parsed[0].Values("cn")[0]))
	assert.Equal(t, strings.Repeat("x", 100), string(parsed[0].Values("description")[0]))
}

func TestParseLDIF(t *testing.T) {
	input := `version: 1
# people
dn: ou=people,dc=example,dc=com
objectClass: organizationalUnit
ou: people

dn: uid=alice,ou=people,
 dc=example,dc=com
objectClass: person
cn: Alice
  Smith
mail: alice@example.com
mail: a@example.com
`
	entries, err := ParseLDIF(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ou=people,dc=example,dc=com", entries[0].DN)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entries[1].DN)
	assert.Equal(t, "Alice Smith", string(entries[1].Values("cn")[0]))
	assert.Len(t, entries[1].Values("mail"), 2)
}

func TestParseLDIFErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"attribute before dn", "cn: x\n", ErrMissingDN},
		{"empty dn", "dn:\ncn: x\n", ErrMissingDN},
		{"bad base64", "dn: cn=x\ncn:: !!!\n", ErrInvalidBase64},
		{"missing colon", "dn: cn=x\ncn\n", ErrInvalidLDIF},
		{"change record", "dn: cn=x\nchangetype: delete\n", ErrInvalidLDIF},
		{"stray continuation", " x\n", ErrInvalidLDIF},
		{"url value", "dn: cn=x\njpegPhoto:< file:///tmp/x\n", ErrInvalidLDIF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLDIF(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
