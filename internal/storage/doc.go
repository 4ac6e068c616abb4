// Package storage provides the persistence layer used by the watcher and
// notifier.
//
// It currently supports a single SQLite backend and holds:
//   - Poll snapshots (one row per watched service, upserted each cycle)
//   - The settings singleton
//   - Push subscriptions with their per-event-type preferences
//   - The append-only notification history
package storage
