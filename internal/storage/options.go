package storage

import (
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Options configures a Store.
type Options struct {
	// Dir is the directory holding the pebble files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory. Intended for tests and tooling.
	InMemory bool

	// FS overrides the filesystem used by pebble.
	FS vfs.FS

	// Sync forces an fsync on every commit.
	Sync bool

	// CacheSize is the pebble block cache size in bytes. Zero uses pebble's default.
	CacheSize int64
}

// DefaultOptions returns options for an on-disk store in dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:  dir,
		Sync: true,
	}
}

func (o Options) pebbleOptions() *pebble.Options {
	opts := &pebble.Options{}
	switch {
	case o.FS != nil:
		opts.FS = o.FS
	case o.InMemory:
		opts.FS = vfs.NewMem()
	}
	if o.CacheSize > 0 {
		opts.Cache = pebble.NewCache(o.CacheSize)
	}
	return opts
}

func (o Options) writeOptions() *pebble.WriteOptions {
	if o.Sync {
		return pebble.Sync
	}
	return pebble.NoSync
}
