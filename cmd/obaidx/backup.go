package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/obaidx/internal/backup"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		base   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write entries as LDIF",
		Long: `The export command writes every entry at or below --base as LDIF,
parents before children. Operational attributes are included so that a
later import keeps entry UUIDs and timestamps.

Example:
  obaidx --config obaidx.yaml export -o backup.ldif
  obaidx --config obaidx.yaml export --base ou=people,dc=example,dc=com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ec, _, logger, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := backup.Export(cmd.Context(), ec, w, base)
			if err != nil {
				return err
			}
			logger.Info("export finished", "base", base, "entries", n)
			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&base, "base", "b", "", "Base DN to export (default: the container base DN)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newBackupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dir>",
		Short: "Take a consistent snapshot of the store",
		Long: `The backup command writes a point in time copy of the store and a
manifest describing it into dir, which must be absent or empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ec, _, logger, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			m, err := backup.Snapshot(ec, args[0])
			if err != nil {
				return err
			}
			logger.Info("snapshot written", "dir", args[0], "entries", m.Entries)
			fmt.Fprintf(cmd.OutOrStdout(), "backed up %d entries to %s\n", m.Entries, args[0])
			return nil
		},
	}
}

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dir>",
		Short: "Restore a snapshot into the configured data directory",
		Long: `The restore command copies a snapshot taken by backup into the
configured data directory, which must be absent or empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.InMemory {
				return errors.New("restore needs an on-disk data directory")
			}
			m, err := backup.Restore(args[0], cfg.Storage.DataDir)
			if err != nil {
				return err
			}
			if m.BaseDN != cfg.Backend.BaseDN {
				newLogger(cfg).Warn("snapshot base DN differs from configuration",
					"snapshot", m.BaseDN, "config", cfg.Backend.BaseDN)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d entries to %s\n", m.Entries, cfg.Storage.DataDir)
			return nil
		},
	}
}
