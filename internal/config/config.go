package config

import "time"

// Config holds the complete configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Backend BackendConfig `yaml:"backend"`
	Indexes []IndexConfig `yaml:"indexes"`
	Logging LogConfig     `yaml:"logging"`
}

// StorageConfig holds storage engine configuration.
type StorageConfig struct {
	DataDir     string        `yaml:"dataDir"`
	InMemory    bool          `yaml:"inMemory"`
	Sync        bool          `yaml:"sync"`
	CacheSize   string        `yaml:"cacheSize"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
}

// BackendConfig holds entry container configuration.
type BackendConfig struct {
	BaseDN                 string `yaml:"baseDN"`
	DeadlockRetryLimit     int    `yaml:"deadlockRetryLimit"`
	CursorEntryLimit       int    `yaml:"cursorEntryLimit"`
	SubtreeDeleteBatchSize int    `yaml:"subtreeDeleteBatchSize"`
	SubtreeDeleteSizeLimit int    `yaml:"subtreeDeleteSizeLimit"`
	// HierarchyEntryLimit caps the IDs kept per key of id2children and
	// id2subtree; 0 means unlimited.
	HierarchyEntryLimit int  `yaml:"hierarchyEntryLimit"`
	EntryCacheSize      int  `yaml:"entryCacheSize"`
	CompressEntries     bool `yaml:"compressEntries"`
}

// IndexConfig describes the indexes maintained for one attribute.
type IndexConfig struct {
	Attribute       string   `yaml:"attribute"`
	Types           []string `yaml:"types"`
	EntryLimit      *int     `yaml:"entryLimit,omitempty"`
	SubstringLength int      `yaml:"substringLength,omitempty"`
	ExtensibleRules []string `yaml:"extensibleRules,omitempty"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Index returns the index configuration of attr, matched case-insensitively.
func (c *Config) Index(attr string) (IndexConfig, bool) {
	for _, ic := range c.Indexes {
		if equalFold(ic.Attribute, attr) {
			return ic, true
		}
	}
	return IndexConfig{}, false
}

// Limit returns the configured entry limit or def when unset.
func (ic IndexConfig) Limit(def int) int {
	if ic.EntryLimit == nil {
		return def
	}
	return *ic.EntryLimit
}
