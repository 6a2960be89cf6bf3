package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/obaidx/internal/backend"
	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
)

func newIndexesCmd(opts *globalOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Show the state of every attribute index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ec, _, _, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			stats, err := ec.IndexStats()
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tTRUSTED\tKEYS\tLIMIT\tEXCEEDED")
			for _, s := range stats {
				for _, ix := range s.Indexes {
					state := fmt.Sprint(ix.Trusted)
					if ix.RebuildRunning {
						state = "rebuilding"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", ix.Name, state, ix.Keys, ix.EntryLimit, ix.EntryLimitExceededCount)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	return cmd
}

func newRebuildCmd(opts *globalOptions) *cobra.Command {
	var (
		verify    bool
		untrusted bool
	)
	cmd := &cobra.Command{
		Use:   "rebuild [attribute...]",
		Short: "Rebuild attribute indexes from the stored entries",
		Long: `The rebuild command drops the indexes of each named attribute, fills
them again from the stored entries and marks them trusted.

Example:
  obaidx rebuild cn mail
  obaidx rebuild --untrusted --verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !untrusted {
				return errors.New("name at least one attribute or use --untrusted")
			}
			ec, _, _, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			attrs := args
			if untrusted {
				if attrs, err = untrustedAttributes(ec); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			for _, attr := range attrs {
				n, err := ec.RebuildIndex(cmd.Context(), attr)
				if err != nil {
					return errors.Wrapf(err, "rebuild %s", attr)
				}
				fmt.Fprintf(w, "%s: rebuilt from %d entries\n", attr, n)
				if !verify {
					continue
				}
				report, err := ec.VerifyIndex(cmd.Context(), attr)
				if err != nil {
					return errors.Wrapf(err, "verify %s", attr)
				}
				fmt.Fprintf(w, "%s: verified %d entries, %d missing, %d under undefined keys\n",
					attr, report.Entries, len(report.Missing), report.Undefined)
				if len(report.Missing) > 0 {
					return errors.Errorf("index %s is missing entries: %s", attr, strings.Join(report.Missing, "; "))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Check every entry against the rebuilt index")
	cmd.Flags().BoolVar(&untrusted, "untrusted", false, "Rebuild every untrusted index")
	return cmd
}

func untrustedAttributes(ec *backend.EntryContainer) ([]string, error) {
	stats, err := ec.IndexStats()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range stats {
		if !s.Trusted {
			out = append(out, s.Attribute)
		}
	}
	return out, nil
}

func newApplyCmd(opts *globalOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the stored indexes with the configuration",
		Long: `The apply command creates and reconfigures the indexes listed in the
configuration and removes stored indexes that are no longer listed. With
--watch it keeps running and applies every later change of the config
file until interrupted. Indexes that need a rebuild are reported; run
"obaidx rebuild --untrusted" to rebuild them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ec, _, logger, err := opts.open()
			if err != nil {
				return err
			}
			defer ec.Close()

			if err := removeUnlisted(cmd.Context(), ec, logger); err != nil {
				return err
			}
			if err := reportUntrusted(cmd, ec); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			if opts.configPath == "" {
				return errors.New("--watch needs --config")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			watcher, err := config.NewIndexWatcher(config.WatcherConfig{
				FilePath:     opts.configPath,
				PollInterval: interval,
				Logger:       logger,
				OnChange: func(r config.Revision) {
					applyIndexChanges(ctx, ec, r, logger)
				},
			})
			if err != nil {
				return err
			}
			logger.Info("watching configuration", "file", opts.configPath)
			return watcher.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and apply config file changes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --watch")
	return cmd
}

// removeUnlisted drops stored indexes that no configured attribute owns.
// backend.New only loads the configured indexes, so those of attributes
// removed from the configuration show up as orphans.
func removeUnlisted(ctx context.Context, ec *backend.EntryContainer, logger logging.Logger) error {
	orphans, err := ec.OrphanedIndexes()
	if err != nil {
		return err
	}
	for _, name := range orphans {
		if err := ec.DropOrphanedIndex(ctx, name); err != nil {
			return errors.Wrapf(err, "drop index %s", name)
		}
		logger.Info("index removed", "index", name)
	}
	return nil
}

func reportUntrusted(cmd *cobra.Command, ec *backend.EntryContainer) error {
	attrs, err := untrustedAttributes(ec)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(attrs) == 0 {
		fmt.Fprintln(w, "all indexes are trusted")
		return nil
	}
	fmt.Fprintf(w, "indexes needing a rebuild: %s\n", strings.Join(attrs, ", "))
	return nil
}

// applyIndexChanges applies the index differences of a configuration
// revision. Failures are logged and do not stop the watcher.
func applyIndexChanges(ctx context.Context, ec *backend.EntryContainer, r config.Revision, logger logging.Logger) {
	for _, attr := range r.Changes.Removed {
		if err := ec.RemoveIndex(ctx, attr); err != nil && !errors.Is(err, backend.ErrIndexNotFound) {
			logger.Error("index removal failed", "attribute", attr, "error", err)
		}
	}
	for _, attr := range append(r.Changes.Added, r.Changes.Modified...) {
		ic, _ := r.New.Index(attr)
		res, err := ec.ApplyIndexConfig(ctx, ic)
		if err != nil {
			logger.Error("index change failed", "attribute", attr, "error", err)
			continue
		}
		logger.Info("index configuration applied", "attribute", attr, "rebuild_required", res.AdminActionRequired)
	}
}
