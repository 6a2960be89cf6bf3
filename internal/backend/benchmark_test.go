package backend

import (
	"context"
	"fmt"
	"testing"

	"github.com/KilimcininKorOglu/obaidx/internal/filter"
)

// populate adds ou=users with n person entries below it.
func populate(b *testing.B, ec *EntryContainer, n int) {
	b.Helper()
	ctx := context.Background()
	if err := ec.Add(ctx, newEntry(testBase, "objectClass", "domain")); err != nil {
		b.Fatalf("add base: %v", err)
	}
	if err := ec.Add(ctx, newEntry("ou=users,"+testBase, "objectClass", "organizationalUnit")); err != nil {
		b.Fatalf("add ou: %v", err)
	}
	for i := 0; i < n; i++ {
		e := newEntry(fmt.Sprintf("uid=user%d,ou=users,%s", i, testBase),
			"objectClass", "person",
			"uid", fmt.Sprintf("user%d", i),
			"cn", fmt.Sprintf("User Number %d", i),
			"uidNumber", fmt.Sprint(10000+i))
		if err := ec.Add(ctx, e); err != nil {
			b.Fatalf("add user%d: %v", i, err)
		}
	}
}

// BenchmarkAdd measures adding an entry with five attribute indexes.
func BenchmarkAdd(b *testing.B) {
	ec := newTestContainer(b, nil)
	populate(b, ec, 0)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e := newEntry(fmt.Sprintf("uid=bench%d,ou=users,%s", i, testBase),
			"objectClass", "person", "uid", fmt.Sprintf("bench%d", i), "cn", "Bench User")
		if err := ec.Add(ctx, e); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearch measures indexed searches against 10000 entries.
func BenchmarkSearch(b *testing.B) {
	ec := newTestContainer(b, nil)
	populate(b, ec, 10000)
	ctx := context.Background()

	for _, f := range []string{
		"(uid=user5000)",
		"(cn=*number 42*)",
		"(&(objectClass=person)(uidNumber>=19990))",
	} {
		parsed := filter.MustParse(f)
		b.Run(f, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ec.Search(ctx, &SearchRequest{BaseDN: testBase, Scope: ScopeSubtree, Filter: parsed}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
