// Package store provides the SQLite-backed persistent cache of tool results.
//
// Each tool kind owns one table whose key columns capture every input that
// affects the tool's output (tool version, configuration fingerprints, source
// fingerprint) plus an optional payload column for tools whose output must be
// replayed on a hit.
//
// # Invariants
//
// Insert-or-ignore:
//   - UNIQUE over all key columns, writes use ON CONFLICT DO NOTHING
//   - the first writer wins; a racing duplicate is a silent no-op
//
// Single owner:
//   - binary_identity holds exactly one row naming the build that wrote the cache
//   - on mismatch every table is dropped and recreated in one transaction
//
// # Database Configuration
//
// Set through DSN parameters so every pooled connection gets them:
//   - WAL mode: readers never block on writers
//   - synchronous=NORMAL: the cache is rebuildable, full fsync is not needed
//   - busy_timeout=5000: wait for the write lock up to 5 seconds
//   - _txlock=immediate: transactions take the write lock up front
package store
