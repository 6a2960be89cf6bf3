package backup

import (
	"bufio"
	"context"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/backend"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
)

// Export writes every entry at or below baseDN to w in LDIF, parents
// before children. An empty baseDN exports the whole container. It
// returns the number of entries written.
func Export(ctx context.Context, ec *backend.EntryContainer, w io.Writer, baseDN string) (int, error) {
	if baseDN == "" {
		baseDN = ec.BaseDN()
	}
	res, err := ec.Search(ctx, &backend.SearchRequest{
		BaseDN: baseDN,
		Scope:  backend.ScopeSubtree,
		Filter: filter.NewAndFilter(),
	})
	if err != nil {
		return 0, err
	}
	entries := res.Entries
	sortParentsFirst(entries)

	bw := bufio.NewWriter(w)
	if _, err := io.WriteString(bw, "version: 1\n\n"); err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := WriteEntry(bw, e); err != nil {
			return i, errors.Wrapf(err, "backup: write %s", e.DN)
		}
	}
	return len(entries), bw.Flush()
}

// ImportOptions controls Import.
type ImportOptions struct {
	// SkipExisting counts entries that already exist instead of failing.
	SkipExisting bool
}

// ImportStats reports the outcome of an import.
type ImportStats struct {
	Added   int
	Skipped int
}

// Import reads LDIF from r and adds its entries to ec, parents first.
func Import(ctx context.Context, ec *backend.EntryContainer, r io.Reader, opts ImportOptions) (ImportStats, error) {
	entries, err := ParseLDIF(r)
	if err != nil {
		return ImportStats{}, err
	}
	return AddAll(ctx, ec, entries, opts)
}

// AddAll adds entries to ec, parents first.
func AddAll(ctx context.Context, ec *backend.EntryContainer, entries []*entry.Entry, opts ImportOptions) (ImportStats, error) {
	sortParentsFirst(entries)
	var stats ImportStats
	for _, e := range entries {
		err := ec.Add(ctx, e)
		switch {
		case err == nil:
			stats.Added++
		case opts.SkipExisting && errors.Is(err, backend.ErrEntryExists):
			stats.Skipped++
		default:
			return stats, errors.Wrapf(err, "backup: import %s", e.DN)
		}
	}
	return stats, nil
}

// sortParentsFirst orders entries by DN depth, keeping the input order
// among entries of equal depth.
func sortParentsFirst(entries []*entry.Entry) {
	depth := func(dn string) int {
		norm, err := entry.NormalizeDN(dn)
		if err != nil {
			return 0
		}
		return entry.Depth(norm)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return depth(entries[i].DN) < depth(entries[j].DN)
	})
}
