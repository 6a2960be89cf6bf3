package backend

import (
	"context"

	"github.com/KilimcininKorOglu/obaidx/internal/filter"
)

// Compare reports whether the entry dn holds value for attr under the
// attribute's equality rule. An attribute the entry lacks compares false.
func (ec *EntryContainer) Compare(ctx context.Context, dn, attr string, value []byte) (bool, error) {
	e, err := ec.GetEntry(ctx, dn)
	if err != nil {
		return false, err
	}
	return ec.evaluator.Evaluate(filter.NewEqualityFilter(attr, value), e) == filter.True, nil
}
