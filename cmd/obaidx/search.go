package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/obaidx/internal/backend"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
)

type searchOptions struct {
	base         string
	scope        string
	filter       string
	sizeLimit    int
	subordinates bool
	jsonOut      bool
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	so := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search entries with an LDAP filter",
		Long: `The search command prints the entries below a base DN that match an
RFC 4515 filter, in LDIF or JSON.

Example:
  obaidx search --filter "(uid=alice)"
  obaidx search --base ou=people,dc=example,dc=com --scope one --filter "(cn=*smith)"
  obaidx search --filter "(uidNumber>=1000)" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := backend.ParseScope(so.scope)
			if err != nil {
				return err
			}
			f, err := filter.Parse(so.filter)
			if err != nil {
				return errors.Wrap(err, "filter")
			}
			ec, _, logger, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			base := so.base
			if base == "" {
				base = ec.BaseDN()
			}
			res, err := ec.Search(cmd.Context(), &backend.SearchRequest{
				BaseDN:       base,
				Scope:        scope,
				Filter:       f,
				SizeLimit:    so.sizeLimit,
				Subordinates: so.subordinates,
			})
			if err != nil && !errors.Is(err, backend.ErrSizeLimitExceeded) {
				return err
			}
			logger.Debug("search finished", "base", base, "scope", scope.String(), "filter", f.String(),
				"entries", len(res.Entries), "indexed", res.Indexed, "candidates", res.Candidates)

			w := cmd.OutOrStdout()
			if so.jsonOut {
				if werr := writeJSON(w, res.Entries); werr != nil {
					return werr
				}
			} else {
				writeLDIF(w, res.Entries)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&so.base, "base", "b", "", "Search base DN (default: the store base DN)")
	cmd.Flags().StringVarP(&so.scope, "scope", "s", "sub", "Search scope: base, one or sub")
	cmd.Flags().StringVarP(&so.filter, "filter", "f", "(objectClass=*)", "LDAP filter")
	cmd.Flags().IntVarP(&so.sizeLimit, "size-limit", "z", 0, "Maximum number of entries, 0 for no limit")
	cmd.Flags().BoolVar(&so.subordinates, "subordinates", false, "Add hasSubordinates and numSubordinates")
	cmd.Flags().BoolVar(&so.jsonOut, "json", false, "Output in JSON format")
	return cmd
}

// writeLDIF prints entries in LDIF. Values that are not valid UTF-8 are
// base64 encoded.
func writeLDIF(w io.Writer, entries []*entry.Entry) {
	for _, e := range entries {
		fmt.Fprintf(w, "dn: %s\n", e.DN)
		for _, name := range e.AttributeNames() {
			for _, v := range e.Values(name) {
				if utf8.Valid(v) {
					fmt.Fprintf(w, "%s: %s\n", name, v)
				} else {
					fmt.Fprintf(w, "%s:: %s\n", name, base64.StdEncoding.EncodeToString(v))
				}
			}
		}
		fmt.Fprintln(w)
	}
}

type jsonEntry struct {
	DN         string              `json:"dn"`
	Attributes map[string][]string `json:"attributes"`
}

func writeJSON(w io.Writer, entries []*entry.Entry) error {
	out := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		je := jsonEntry{DN: e.DN, Attributes: make(map[string][]string)}
		for _, name := range e.AttributeNames() {
			for _, v := range e.Values(name) {
				je.Attributes[name] = append(je.Attributes[name], string(v))
			}
		}
		out = append(out, je)
	}
	return printJSON(w, out)
}
