// Package entry provides the directory entry model: entries, distinguished
// names, modifications and the on-disk entry codec.
package entry
