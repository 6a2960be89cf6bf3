// Package backup exports, imports and snapshots the contents of an entry
// container.
//
// # LDIF
//
// Export writes every entry below a base DN in LDIF (RFC 2849). Import
// reads LDIF content records and adds them parents first, so the order of
// the file does not matter:
//
//	n, err := backup.Export(ctx, ec, w, "")
//	stats, err := backup.Import(ctx, ec, r, backup.ImportOptions{SkipExisting: true})
//
// Operational attributes are exported too. On import an existing
// entryUUID or createTimestamp is kept.
//
// # Snapshots
//
// Snapshot writes a pebble checkpoint of the whole store next to a
// manifest describing it. A snapshot directory restored with Restore is a
// complete data directory, indexes and trust state included, so no
// rebuild is needed:
//
//	m, err := backup.Snapshot(ec, "/backup/2026-10-19")
//	m, err = backup.Restore("/backup/2026-10-19", "/var/lib/obaidx")
package backup
