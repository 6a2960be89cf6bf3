package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validIndexTypes = map[string]bool{
	"equality":    true,
	"presence":    true,
	"substring":   true,
	"ordering":    true,
	"approximate": true,
	"extensible":  true,
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid. Whether the schema
// provides the matching rules an index needs is checked when the index is
// opened.
func ValidateConfig(config *Config) []error {
	var errs []error
	errs = append(errs, validateStorageConfig(&config.Storage)...)
	errs = append(errs, validateBackendConfig(&config.Backend)...)
	errs = append(errs, validateIndexConfigs(config.Indexes)...)
	errs = append(errs, validateLogConfig(&config.Logging)...)
	return errs
}

func validateStorageConfig(config *StorageConfig) []error {
	var errs []error

	if !config.InMemory {
		if config.DataDir == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.dataDir",
				Message: "data directory is required",
			})
		} else if !filepath.IsAbs(config.DataDir) {
			errs = append(errs, ValidationError{
				Field:   "storage.dataDir",
				Message: "must be an absolute path",
			})
		}
	}

	if config.CacheSize != "" {
		if _, err := ParseSize(config.CacheSize); err != nil {
			errs = append(errs, ValidationError{
				Field:   "storage.cacheSize",
				Message: err.Error(),
			})
		}
	}

	if config.LockTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.lockTimeout",
			Message: "must be non-negative",
		})
	}
	return errs
}

func validateBackendConfig(config *BackendConfig) []error {
	var errs []error

	if config.BaseDN != "" {
		if _, err := entry.NormalizeDN(config.BaseDN); err != nil {
			errs = append(errs, ValidationError{
				Field:   "backend.baseDN",
				Message: err.Error(),
			})
		}
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"backend.deadlockRetryLimit", config.DeadlockRetryLimit},
		{"backend.cursorEntryLimit", config.CursorEntryLimit},
		{"backend.subtreeDeleteSizeLimit", config.SubtreeDeleteSizeLimit},
		{"backend.hierarchyEntryLimit", config.HierarchyEntryLimit},
		{"backend.entryCacheSize", config.EntryCacheSize},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			errs = append(errs, ValidationError{Field: n.field, Message: "must be non-negative"})
		}
	}

	if config.SubtreeDeleteBatchSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "backend.subtreeDeleteBatchSize",
			Message: "must be at least 1",
		})
	}
	return errs
}

func validateIndexConfigs(indexes []IndexConfig) []error {
	var errs []error
	seen := make(map[string]bool)

	for i, ic := range indexes {
		field := fmt.Sprintf("indexes[%d]", i)
		if ic.Attribute == "" {
			errs = append(errs, ValidationError{Field: field + ".attribute", Message: "attribute is required"})
		} else if seen[strings.ToLower(ic.Attribute)] {
			errs = append(errs, ValidationError{
				Field:   field + ".attribute",
				Message: fmt.Sprintf("duplicate index for %s", ic.Attribute),
			})
		}
		seen[strings.ToLower(ic.Attribute)] = true

		if len(ic.Types) == 0 {
			errs = append(errs, ValidationError{Field: field + ".types", Message: "at least one index type is required"})
		}
		extensible := false
		for _, t := range ic.Types {
			if !validIndexTypes[strings.ToLower(t)] {
				errs = append(errs, ValidationError{
					Field:   field + ".types",
					Message: fmt.Sprintf("invalid index type: %s", t),
				})
			}
			if strings.EqualFold(t, "extensible") {
				extensible = true
			}
		}
		if extensible && len(ic.ExtensibleRules) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".extensibleRules",
				Message: "extensible indexes need at least one matching rule",
			})
		}

		if ic.EntryLimit != nil && *ic.EntryLimit < 0 {
			errs = append(errs, ValidationError{Field: field + ".entryLimit", Message: "must be non-negative"})
		}
		if ic.SubstringLength < 0 {
			errs = append(errs, ValidationError{Field: field + ".substringLength", Message: "must be non-negative"})
		}
	}
	return errs
}

func validateLogConfig(config *LogConfig) []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if config.Level != "" && !validLevels[strings.ToLower(config.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be debug, info, warn, or error",
		})
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if config.Format != "" && !validFormats[strings.ToLower(config.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be text or json",
		})
	}

	if config.Output != "" && config.Output != "stdout" && config.Output != "stderr" {
		dir := filepath.Dir(config.Output)
		if !filepath.IsAbs(config.Output) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: "must be stdout, stderr, or an absolute file path",
			})
		} else if _, err := os.Stat(dir); os.IsNotExist(err) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: fmt.Sprintf("directory %s does not exist", dir),
			})
		}
	}
	return errs
}

// ParseSize parses a size string like "256MB" or "1GB".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}

	// Longest suffixes first so that "MB" is not read as "B".
	multipliers := []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			var num int64
			if _, err := fmt.Sscanf(strings.TrimSuffix(s, m.suffix), "%d", &num); err != nil || num < 0 {
				return 0, fmt.Errorf("invalid size format: %s", s)
			}
			return num * m.mult, nil
		}
	}

	var num int64
	if _, err := fmt.Sscanf(s, "%d", &num); err != nil || num < 0 {
		return 0, fmt.Errorf("invalid size format: %s", s)
	}
	return num, nil
}
