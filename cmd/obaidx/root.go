package main

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/obaidx/internal/backend"
	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dataDir    string
	baseDN     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "obaidx",
		Short: "Load, query and maintain a directory index store",
		Long: `obaidx manages an LDAP style entry store with attribute indexes.
Entries live under a single base DN; searches are answered from the
equality, presence, substring, ordering, approximate and extensible
indexes configured for each attribute.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVarP(&opts.dataDir, "data", "d", "", "Data directory (overrides config)")
	root.PersistentFlags().StringVar(&opts.baseDN, "base-dn", "", "Base DN of the store (overrides config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newImportCmd(opts),
		newSearchCmd(opts),
		newDeleteCmd(opts),
		newExportCmd(opts),
		newBackupCmd(opts),
		newRestoreCmd(opts),
		newIndexesCmd(opts),
		newRebuildCmd(opts),
		newApplyCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration file, or the defaults when none is
// given, applies the command line overrides and validates the result.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(o.configPath); err != nil {
			return nil, errors.Wrap(err, "load config")
		}
	}
	if o.dataDir != "" {
		dir, err := filepath.Abs(o.dataDir)
		if err != nil {
			return nil, err
		}
		cfg.Storage.DataDir = dir
		cfg.Storage.InMemory = false
	}
	if o.baseDN != "" {
		cfg.Backend.BaseDN = o.baseDN
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, errors.Wrap(errs[0], "invalid config")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// open loads the configuration and opens the entry container it describes.
func (o *globalOptions) open() (*backend.EntryContainer, *config.Config, logging.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg)
	ec, err := backend.New(cfg, logger)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open store")
	}
	return ec, cfg, logger, nil
}
