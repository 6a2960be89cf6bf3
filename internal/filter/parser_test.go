package filter

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleItems(t *testing.T) {
	tests := []struct {
		in    string
		typ   FilterType
		attr  string
		value string
	}{
		{"(cn=Alice)", FilterEquality, "cn", "Alice"},
		{"cn=Alice", FilterEquality, "cn", "Alice"},
		{"(uidNumber>=100)", FilterGreaterOrEqual, "uidNumber", "100"},
		{"(uidNumber<=100)", FilterLessOrEqual, "uidNumber", "100"},
		{"(sn~=smyth)", FilterApproxMatch, "sn", "smyth"},
		{"(mail=*)", FilterPresent, "mail", ""},
		{"(cn;lang-fr=Jean)", FilterEquality, "cn;lang-fr", "Jean"},
		{"(description=a>=b)", FilterEquality, "description", "a>=b"},
		{"(cn=)", FilterEquality, "cn", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, f.Type)
			assert.Equal(t, tt.attr, f.Attribute)
			assert.Equal(t, tt.value, string(f.Value))
		})
	}
}

func TestParseEscapes(t *testing.T) {
	f, err := Parse(`(cn=a\2ab\28c\29\5c\00)`)
	require.NoError(t, err)
	assert.Equal(t, FilterEquality, f.Type)
	assert.Equal(t, []byte("a*b(c)\\\x00"), f.Value)

	f, err = Parse(`(cn=\2A*x)`)
	require.NoError(t, err)
	require.Equal(t, FilterSubstring, f.Type)
	assert.Equal(t, []byte("*"), f.Substring.Initial)
	assert.Equal(t, []byte("x"), f.Substring.Final)

	for _, bad := range []string{`(cn=\2)`, `(cn=\zz)`, `(cn=abc\)`} {
		_, err := Parse(bad)
		assert.True(t, errors.Is(err, ErrInvalidEscape) || errors.Is(err, ErrUnbalancedParens), bad)
	}
}

func TestParseSubstring(t *testing.T) {
	tests := []struct {
		in      string
		initial string
		any     []string
		final   string
	}{
		{"(cn=ab*)", "ab", nil, ""},
		{"(cn=*yz)", "", nil, "yz"},
		{"(cn=*mid*)", "", []string{"mid"}, ""},
		{"(cn=ab*c*d*yz)", "ab", []string{"c", "d"}, "yz"},
		{"(cn=a**z)", "a", nil, "z"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := Parse(tt.in)
			require.NoError(t, err)
			require.Equal(t, FilterSubstring, f.Type)
			sf := f.Substring
			assert.Equal(t, tt.initial, string(sf.Initial))
			assert.Equal(t, tt.final, string(sf.Final))
			var any []string
			for _, a := range sf.Any {
				any = append(any, string(a))
			}
			assert.Equal(t, tt.any, any)
		})
	}
}

func TestParseExtensible(t *testing.T) {
	tests := []struct {
		in   string
		want ExtensibleMatch
	}{
		{"(cn:=Alice)", ExtensibleMatch{Attribute: "cn", Value: []byte("Alice")}},
		{"(cn:en.eq:=Émile)", ExtensibleMatch{Attribute: "cn", MatchingRule: "en.eq", Value: []byte("Émile")}},
		{"(cn:dn:2.5.13.5:=Bob)", ExtensibleMatch{Attribute: "cn", MatchingRule: "2.5.13.5", DNAttributes: true, Value: []byte("Bob")}},
		{"(:caseExactMatch:=x)", ExtensibleMatch{MatchingRule: "caseExactMatch", Value: []byte("x")}},
		{"(:DN:caseIgnoreMatch:=people)", ExtensibleMatch{MatchingRule: "caseIgnoreMatch", DNAttributes: true, Value: []byte("people")}},
		{"(o:dn:=Acme)", ExtensibleMatch{Attribute: "o", DNAttributes: true, Value: []byte("Acme")}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := Parse(tt.in)
			require.NoError(t, err)
			require.Equal(t, FilterExtensibleMatch, f.Type)
			assert.Equal(t, tt.want, *f.Extensible)
			assert.Equal(t, tt.want.Attribute, f.Attribute)
		})
	}

	for _, bad := range []string{"(:=x)", "(:dn:=x)", "(cn:a:b:=x)", "(cn::=x)"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseComposite(t *testing.T) {
	f, err := Parse("(&(objectClass=person)(|(cn=a*)(sn=b))(!(uid=x)))")
	require.NoError(t, err)
	require.Equal(t, FilterAnd, f.Type)
	require.Len(t, f.Children, 3)
	assert.Equal(t, FilterEquality, f.Children[0].Type)
	assert.Equal(t, FilterOr, f.Children[1].Type)
	assert.Len(t, f.Children[1].Children, 2)
	require.Equal(t, FilterNot, f.Children[2].Type)
	assert.Equal(t, "uid", f.Children[2].Child.Attribute)

	f, err = Parse("(&)")
	require.NoError(t, err)
	assert.Equal(t, FilterAnd, f.Type)
	assert.Empty(t, f.Children)

	f, err = Parse("(|)")
	require.NoError(t, err)
	assert.Equal(t, FilterOr, f.Type)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in  string
		err error
	}{
		{"", ErrEmptyFilter},
		{"   ", ErrEmptyFilter},
		{"()", ErrEmptyFilter},
		{"(cn=a", ErrUnbalancedParens},
		{"(&(cn=a)", ErrUnbalancedParens},
		{"(cn=a))", ErrInvalidFilter},
		{"(cn)", ErrInvalidFilter},
		{"(=a)", ErrMissingAttribute},
		{"(c n=a)", ErrInvalidFilter},
		{"(cn=a(b)", ErrInvalidFilter},
		{"(!(cn=a)(sn=b))", ErrUnbalancedParens},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestFilterStringRoundTrip(t *testing.T) {
	for _, s := range []string{
		"(&(objectClass=person)(cn=ab*c*yz))",
		"(|(uid=x)(!(sn=y)))",
		"(cn=a\\2ab)",
		"(mail=*)",
		"(cn:dn:en.eq:=x)",
		"(:caseExactMatch:=x)",
		"(uidNumber>=10)",
		"(sn~=smith)",
		"(&)",
	} {
		f, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, f.String())
	}
}

func TestFilterAttributes(t *testing.T) {
	f := MustParse("(&(cn=a)(|(CN=b)(sn=c))(!(mail=*)))")
	assert.Equal(t, []string{"cn", "sn", "mail"}, f.Attributes())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("(cn=a") })
}
