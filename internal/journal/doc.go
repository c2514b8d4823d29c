// Package journal provides a SQLite-backed, append-only log of the patches
// a document sends to its peers.
//
// The journal holds two tables:
//   - documents: one row per journaled document with its latest full
//     snapshot
//   - patches: every outbound patch after that snapshot
//
// # Ordering
//
// Rows are ordered by seq, a logical clock shared by the whole journal.
// Timestamps are informational only. A peer that has applied everything up
// to some seq catches up by replaying the patches after it.
//
// # Payloads
//
// Snapshots and patches are stored zstd-compressed. Each patch carries the
// BLAKE3-256 digest of its uncompressed JSON, verified on every read.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Patches must belong to a snapshotted document
package journal
