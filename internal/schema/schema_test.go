package schema

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAttributeLookup(t *testing.T) {
	s := Default()

	tests := []struct {
		name     string
		expected string
	}{
		{"cn", "cn"},
		{"commonName", "cn"},
		{"CN", "cn"},
		{"2.5.4.3", "cn"},
		{"mail", "mail"},
		{"uidNumber", "uidNumber"},
	}
	for _, tt := range tests {
		at, ok := s.AttributeType(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.expected, at.Name)
	}

	_, ok := s.AttributeType("nonexistent")
	assert.False(t, ok)
}

func TestAddAttributeTypeDuplicate(t *testing.T) {
	s := NewSchema()
	require.NoError(t, s.AddAttributeType(NewAttributeType("1.2.3", "foo")))
	err := s.AddAttributeType(NewAttributeType("1.2.4", "FOO"))
	assert.ErrorIs(t, err, ErrAttributeTypeExists)
}

func TestInheritedRules(t *testing.T) {
	s := Default()
	cn, _ := s.AttributeType("cn")

	require.NotNil(t, s.EqualityRule(cn))
	assert.Equal(t, "caseIgnoreMatch", s.EqualityRule(cn).Name)
	assert.Equal(t, "caseIgnoreOrderingMatch", s.OrderingRule(cn).Name)
	assert.Equal(t, "caseIgnoreSubstringsMatch", s.SubstringRule(cn).Name)
	assert.Equal(t, "ds-mr-double-metaphone-approx", s.ApproximateRule(cn).Name)

	member, _ := s.AttributeType("member")
	assert.Nil(t, s.OrderingRule(member))
	assert.Nil(t, s.SubstringRule(member))
}

func TestResolveUnknownAttribute(t *testing.T) {
	s := Default()
	at := s.ResolveAttributeType("x-custom;lang-en")
	assert.Equal(t, "x-custom", at.Name)
	assert.Equal(t, "caseIgnoreMatch", s.EqualityRule(at).Name)
}

func TestCaseIgnoreNormalization(t *testing.T) {
	r, ok := Default().MatchingRule("caseIgnoreMatch")
	require.True(t, ok)

	tests := []struct {
		in       string
		expected string
	}{
		{"Alice", "alice"},
		{"  Alice   Smith ", "alice smith"},
		{"STRASSE", "strasse"},
		{"ﬁle", "file"},
	}
	for _, tt := range tests {
		got, err := r.NormalizeValue([]byte(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.expected, string(got), tt.in)
	}
}

func TestSubstringElementKeepsSpaces(t *testing.T) {
	r, _ := Default().MatchingRule("caseIgnoreSubstringsMatch")
	got, err := r.NormalizeAssertionValue([]byte(" Bob "))
	require.NoError(t, err)
	assert.Equal(t, " bob ", string(got))
}

func TestIntegerOrdering(t *testing.T) {
	r, _ := Default().MatchingRule("integerOrderingMatch")
	values := []string{"10", "-20", "0", "5", "-10", "-3", "100", "+7", "007"}
	expected := []string{"-20", "-10", "-3", "0", "5", "+7", "007", "10", "100"}

	keys := make(map[string][]byte)
	for _, v := range values {
		k, err := r.NormalizeValue([]byte(v))
		require.NoError(t, err)
		keys[v] = k
	}
	sort.SliceStable(values, func(i, j int) bool {
		return bytes.Compare(keys[values[i]], keys[values[j]]) < 0
	})
	assert.Equal(t, expected, values)

	_, err := r.NormalizeValue([]byte("12a"))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestGeneralizedTimeNormalization(t *testing.T) {
	r, _ := Default().MatchingRule("generalizedTimeMatch")
	a, err := r.NormalizeValue([]byte("20240102030405Z"))
	require.NoError(t, err)
	b, err := r.NormalizeValue([]byte("20240102040405+0100"))
	require.NoError(t, err)
	assert.Equal(t, "20240102030405.000Z", string(a))
	assert.Equal(t, a, b)

	_, err = r.NormalizeValue([]byte("yesterday"))
	assert.Error(t, err)
}

func TestDNNormalization(t *testing.T) {
	r, _ := Default().MatchingRule("distinguishedNameMatch")
	a, err := r.NormalizeValue([]byte("UID=Alice, DC=Example,DC=com"))
	require.NoError(t, err)
	b, err := r.NormalizeValue([]byte("uid=alice,dc=example,dc=com"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPhoneticApproximation(t *testing.T) {
	r, _ := Default().MatchingRule("ds-mr-double-metaphone-approx")

	tests := []struct {
		a, b  string
		equal bool
	}{
		{"Smith", "Smyth", true},
		{"Catherine", "Kathryn", true},
		{"John Smith", "Jon Smyth", true},
		{"Smith", "Jones", false},
	}
	for _, tt := range tests {
		ka, err := r.NormalizeValue([]byte(tt.a))
		require.NoError(t, err)
		kb, err := r.NormalizeValue([]byte(tt.b))
		require.NoError(t, err)
		assert.Equal(t, tt.equal, bytes.Equal(ka, kb), "%s ~= %s", tt.a, tt.b)
	}
}
