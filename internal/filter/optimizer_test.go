package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCatalog map[string][]FilterType

func (m mapCatalog) HasIndex(attr string, kind FilterType) bool {
	for _, k := range m[attr] {
		if k == kind {
			return true
		}
	}
	return false
}

func TestOptimizerOrdersAndByCost(t *testing.T) {
	o := NewOptimizer(mapCatalog{
		"uid":         {FilterEquality},
		"cn":          {FilterSubstring},
		"mail":        {FilterPresent},
		"objectclass": {FilterEquality},
	})

	f := MustParse("(&(description=x)(cn=*ab*)(!(sn=y))(mail=*)(uid=jsmith))")
	got := o.Optimize(f)

	assert.Equal(t, "(&(uid=jsmith)(mail=*)(cn=*ab*)(description=x)(!(sn=y)))", got.String())
	// The input is left untouched.
	assert.Equal(t, "(&(description=x)(cn=*ab*)(!(sn=y))(mail=*)(uid=jsmith))", f.String())
}

func TestOptimizerFlattens(t *testing.T) {
	o := NewOptimizer(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"(&(a=1)(&(b=2)(c=3)))", "(&(a=1)(b=2)(c=3))"},
		{"(|(a=1)(|(b=2)(|(c=3))))", "(|(a=1)(b=2)(c=3))"},
		{"(&(a=1))", "(a=1)"},
		{"(&(a=1)(a=1))", "(a=1)"},
		{"(!(!(a=1)))", "(a=1)"},
		{"(&(|(a=1)(b=2))(c=3))", "(&(|(a=1)(b=2))(c=3))"},
		{"(&(a=1)(&))", "(&(a=1)(&))"},
		{"(|)", "(|)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, o.Optimize(MustParse(tt.in)).String())
		})
	}
	assert.Nil(t, o.Optimize(nil))
}

func TestOptimizerCost(t *testing.T) {
	o := NewOptimizer(mapCatalog{
		"uid":       {FilterEquality},
		"uidnumber": {FilterGreaterOrEqual, FilterLessOrEqual},
		"cn":        {FilterExtensibleMatch},
	})

	tests := []struct {
		in   string
		want int
	}{
		{"(uid=a)", CostIndexLookup},
		{"(UID=a)", CostIndexLookup},
		{"(sn=a)", CostFullScan},
		{"(uidNumber>=5)", CostRangeIndex},
		{"(cn:en.eq:=x)", CostSubstringIndex},
		{"(:en.eq:=x)", CostFullScan},
		{"(&(sn=a)(uid=b))", CostIndexLookup},
		{"(|(uid=a)(uid=b))", 2 * (CostIndexLookup + CostOrUnion)},
		{"(|(uid=a)(sn=b))", CostFullScan},
		{"(!(uid=a))", CostFullScan},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, o.Cost(MustParse(tt.in)))
		})
	}
}
