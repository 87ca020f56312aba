// Package storage persists Ganymede's decision state: proposed actions,
// the append-only audit log, per-user learned weights, policy performance
// counters, labeled training examples, judge reliability data, the human
// review queue, and the versioned key-value table holding per-agent
// configuration bundle pointers.
//
// Two backends implement the same Store interface: an in-memory backend
// for tests and ephemeral runs, and a SQLite backend (WAL mode,
// single-writer pool) for durable single-instance deployments.
package storage
