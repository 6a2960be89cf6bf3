package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

func testEntry() *entry.Entry {
	e := entry.NewEntry("uid=jsmith,ou=People,dc=example,dc=com")
	e.SetStringAttribute("objectClass", "top", "person", "inetOrgPerson")
	e.SetStringAttribute("commonName", "John  Smith", "Johnny")
	e.SetStringAttribute("cn;lang-fr", "Jean Smith")
	e.SetStringAttribute("sn", "Smith")
	e.SetStringAttribute("uid", "jsmith")
	e.SetStringAttribute("uidNumber", "9")
	e.SetStringAttribute("mail", "John.Smith@Example.COM")
	e.SetStringAttribute("description", "Émile's account")
	return e
}

func TestEvaluatorMatches(t *testing.T) {
	ev := NewEvaluator(schema.Default())
	e := testEntry()

	tests := []struct {
		filter string
		want   Result
	}{
		// Equality through aliases and case folding.
		{"(cn=john smith)", True},
		{"(CN=JOHNNY)", True},
		{"(commonName=johnny)", True},
		{"(2.5.4.3=johnny)", True},
		{"(cn=jean smith)", True},
		{"(cn;lang-fr=johnny)", False},
		{"(cn;lang-fr=JEAN SMITH)", True},
		{"(cn=nobody)", False},
		{"(name=johnny)", False},

		// Presence.
		{"(mail=*)", True},
		{"(telephoneNumber=*)", False},

		// Substring.
		{"(cn=jo*)", True},
		{"(cn=*smi*)", True},
		{"(cn=j*n s*h)", True},
		{"(cn=*ny)", True},
		{"(cn=smith*)", False},
		{"(mail=*@example.com)", True},
		{"(uidNumber=9*)", Undefined},

		// Ordering uses the integer rule, not byte order.
		{"(uidNumber>=10)", False},
		{"(uidNumber<=10)", True},
		{"(uidNumber>=9)", True},
		{"(uidNumber>=abc)", Undefined},
		{"(sn>=s)", True},
		{"(sn<=s)", False},
		{"(mail>=a)", Undefined},

		// Approximate.
		{"(sn~=smyth)", True},
		{"(uid~=JSMITH)", True},

		// Extensible.
		{"(cn:=johnny)", True},
		{"(cn:caseExactMatch:=johnny)", False},
		{"(cn:caseExactMatch:=Johnny)", True},
		{"(cn:2.5.13.5:=Johnny)", True},
		{"(:caseExactMatch:=jsmith)", True},
		{"(description:en.eq:=ÉMILE'S ACCOUNT)", True},
		{"(description:en.sub:=*mil*)", True},
		{"(uid:caseIgnoreSubstringsMatch:=js*h)", True},
		{"(uid:unknownMatch:=x)", Undefined},
		{"(ou:dn:=people)", True},
		{"(ou:=people)", False},
		{"(:dn:caseIgnoreMatch:=example)", True},
		{"(dc:dn:=org)", False},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			assert.Equal(t, tt.want, ev.Evaluate(MustParse(tt.filter), e))
		})
	}
}

func TestEvaluatorThreeValuedLogic(t *testing.T) {
	ev := NewEvaluator(nil)
	e := testEntry()

	tests := []struct {
		filter string
		want   Result
	}{
		{"(!(uidNumber>=abc))", Undefined},
		{"(&(uid=jsmith)(uidNumber>=abc))", Undefined},
		{"(&(uid=other)(uidNumber>=abc))", False},
		{"(|(uid=jsmith)(uidNumber>=abc))", True},
		{"(|(uid=other)(uidNumber>=abc))", Undefined},
		{"(!(uid=other))", True},
		{"(&)", True},
		{"(|)", False},
		{"(!(&))", False},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			got := ev.Evaluate(MustParse(tt.filter), e)
			assert.Equal(t, tt.want, got, "got %s", got)
			assert.Equal(t, tt.want == True, ev.Matches(MustParse(tt.filter), e))
		})
	}
}

func TestEvaluatorNilInputs(t *testing.T) {
	ev := NewEvaluator(nil)
	assert.Equal(t, Undefined, ev.Evaluate(nil, testEntry()))
	assert.Equal(t, Undefined, ev.Evaluate(MustParse("(cn=a)"), nil))
	assert.False(t, ev.Matches(nil, nil))
	assert.NotNil(t, ev.GetSchema())
}

func TestMatchSubstring(t *testing.T) {
	tests := []struct {
		value   string
		initial string
		any     []string
		final   string
		want    bool
	}{
		{"abcdef", "ab", nil, "ef", true},
		{"abcdef", "", []string{"cd"}, "", true},
		{"abcdef", "", []string{"de", "bc"}, "", false},
		// Components may not overlap.
		{"aba", "ab", nil, "ba", false},
		{"abab", "ab", nil, "ab", true},
		{"abc", "", []string{"b"}, "bc", false},
		{"", "", nil, "", true},
	}
	for _, tt := range tests {
		var any [][]byte
		for _, a := range tt.any {
			any = append(any, []byte(a))
		}
		got := matchSubstring([]byte(tt.value), []byte(tt.initial), any, []byte(tt.final))
		assert.Equal(t, tt.want, got, "%q %q %v %q", tt.value, tt.initial, tt.any, tt.final)
	}
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "TRUE", True.String())
	assert.Equal(t, "FALSE", False.String())
	assert.Equal(t, "UNDEFINED", Undefined.String())
}
