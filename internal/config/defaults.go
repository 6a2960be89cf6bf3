package config

import "time"

// Default values.
const (
	DefaultEntryLimit             = 4000
	DefaultSubstringLength        = 6
	DefaultDeadlockRetryLimit     = 10
	DefaultCursorEntryLimit       = 100000
	DefaultSubtreeDeleteBatchSize = 5000
	DefaultSubtreeDeleteSizeLimit = 100000
	DefaultEntryCacheSize         = 10000
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:     "/var/lib/obaidx",
			Sync:        true,
			CacheSize:   "64MB",
			LockTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseDN:                 "",
			DeadlockRetryLimit:     DefaultDeadlockRetryLimit,
			CursorEntryLimit:       DefaultCursorEntryLimit,
			SubtreeDeleteBatchSize: DefaultSubtreeDeleteBatchSize,
			SubtreeDeleteSizeLimit: DefaultSubtreeDeleteSizeLimit,
			EntryCacheSize:         DefaultEntryCacheSize,
			CompressEntries:        true,
		},
		Indexes: []IndexConfig{
			{Attribute: "objectClass", Types: []string{"equality"}},
			{Attribute: "cn", Types: []string{"equality", "presence", "substring"}},
			{Attribute: "sn", Types: []string{"equality", "substring"}},
			{Attribute: "uid", Types: []string{"equality"}},
			{Attribute: "mail", Types: []string{"equality", "substring"}},
			{Attribute: "member", Types: []string{"equality"}},
			{Attribute: "uniqueMember", Types: []string{"equality"}},
			{Attribute: "entryUUID", Types: []string{"equality"}},
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
