package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KilimcininKorOglu/obaidx/internal/backup"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// importFile is the YAML layout read by the import command:
//
//	entries:
//	  - dn: uid=alice,ou=people,dc=example,dc=com
//	    attributes:
//	      objectClass: [person]
//	      cn: [Alice Smith]
type importFile struct {
	Entries []importEntry `yaml:"entries"`
}

type importEntry struct {
	DN         string              `yaml:"dn"`
	Attributes map[string][]string `yaml:"attributes"`
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var skipExisting bool
	cmd := &cobra.Command{
		Use:   "import <file.yaml|file.ldif>",
		Short: "Add the entries listed in a YAML or LDIF file",
		Long: `The import command adds every entry of a YAML or LDIF file. Files
ending in .ldif are read as LDIF content records; anything else is read
as YAML. Parents are added before their children whatever the order in
the file.

Example:
  obaidx --config obaidx.yaml import people.yaml
  obaidx --config obaidx.yaml import export.ldif --skip-existing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readEntries(args[0])
			if err != nil {
				return err
			}
			ec, _, logger, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			stats, err := backup.AddAll(cmd.Context(), ec, entries, backup.ImportOptions{SkipExisting: skipExisting})
			if err != nil {
				return err
			}
			logger.Info("import finished", "file", args[0], "added", stats.Added, "skipped", stats.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries", stats.Added)
			if stats.Skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", skipped %d existing", stats.Skipped)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip entries that already exist")
	return cmd
}

// readEntries reads path as LDIF or YAML depending on its extension.
func readEntries(path string) ([]*entry.Entry, error) {
	if !strings.EqualFold(filepath.Ext(path), ".ldif") {
		return readImportFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := backup.ParseLDIF(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return entries, nil
}

// readImportFile parses the YAML file at path.
func readImportFile(path string) ([]*entry.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f importFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	out := make([]*entry.Entry, 0, len(f.Entries))
	for i, ie := range f.Entries {
		if ie.DN == "" {
			return nil, errors.Errorf("%s: entry %d has no dn", path, i+1)
		}
		e := entry.NewEntry(ie.DN)
		names := make([]string, 0, len(ie.Attributes))
		for name := range ie.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, v := range ie.Attributes[name] {
				e.AddValues(name, []byte(v))
			}
		}
		out = append(out, e)
	}
	return out, nil
}
