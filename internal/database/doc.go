// Package database keeps a history of crawl inventories in SQLite
// (modernc.org/sqlite, no cgo).
//
// Each saved run stores its seeds, timing and one row per identity with its
// merged variants, status and fingerprints. The history command lists runs,
// reprints one, or diffs the identities of two.
package database
