package config

import (
	"context"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/logging"
)

// Revision is a newly accepted version of the watched file.
type Revision struct {
	Old, New *Config
	Changes  IndexChanges
}

// WatcherConfig configures an IndexWatcher.
type WatcherConfig struct {
	FilePath string
	// PollInterval defaults to one second.
	PollInterval time.Duration
	// Debounce is how long new content must stay unchanged before it is
	// loaded. It defaults to twice the poll interval.
	Debounce time.Duration
	// OnChange receives every valid revision whose index section differs
	// from the previous one. It runs on the watcher goroutine.
	OnChange func(Revision)
	Logger   logging.Logger
}

// IndexWatcher polls a configuration file and reports the index changes
// between successive valid revisions. Content is compared by hash, so
// rewriting a file with the same bytes is not a change. Revisions that
// fail to parse or validate are logged and skipped.
type IndexWatcher struct {
	path     string
	interval time.Duration
	debounce time.Duration
	onChange func(Revision)
	logger   logging.Logger

	mu      sync.Mutex
	current *Config
	applied uint64

	// pending is the hash of content seen but not yet loaded.
	pending      uint64
	pendingSince time.Time
}

// NewIndexWatcher loads the current revision of cfg.FilePath.
func NewIndexWatcher(cfg WatcherConfig) (*IndexWatcher, error) {
	if cfg.FilePath == "" {
		return nil, ErrMissingConfigFile
	}
	if cfg.OnChange == nil {
		return nil, ErrMissingOnChange
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * cfg.PollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", cfg.FilePath)
	}
	current, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	sum := xxhash.Sum64(data)
	return &IndexWatcher{
		path:     cfg.FilePath,
		interval: cfg.PollInterval,
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		logger:   cfg.Logger.WithFields("component", "config-watcher", "file", cfg.FilePath),
		current:  current,
		applied:  sum,
		pending:  sum,
	}, nil
}

// Run polls until ctx is done.
func (w *IndexWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			w.poll(now)
		}
	}
}

func (w *IndexWatcher) poll(now time.Time) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Debug("config poll failed", "error", err)
		return
	}
	sum := xxhash.Sum64(data)
	switch {
	case sum == w.applied:
		w.pending = sum
		return
	case sum != w.pending:
		w.pending = sum
		w.pendingSince = now
		return
	case now.Sub(w.pendingSince) < w.debounce:
		return
	}
	w.applied = sum
	w.reload(data)
}

func (w *IndexWatcher) reload(data []byte) {
	next, err := ParseConfig(data)
	if err != nil {
		w.logger.Warn("config reload failed", "error", err)
		return
	}
	if errs := ValidateConfig(next); len(errs) > 0 {
		for _, e := range errs {
			w.logger.Warn("config reload rejected", "error", e)
		}
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	w.mu.Unlock()

	if !reflect.DeepEqual(prev.Storage, next.Storage) || !reflect.DeepEqual(prev.Backend, next.Backend) {
		w.logger.Warn("storage and backend settings apply on the next start")
	}
	changes := DiffIndexes(prev, next)
	if changes.Empty() {
		w.logger.Debug("config reloaded without index changes")
		return
	}
	w.logger.Info("config reloaded", "added", changes.Added, "removed", changes.Removed, "modified", changes.Modified)
	w.onChange(Revision{Old: prev, New: next, Changes: changes})
}

// Current returns the last accepted revision.
func (w *IndexWatcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
