// Package watcher is the change-detection engine: a single repeating timer
// drives poll cycles, each cycle fans out to one poller per watched service
// plus the upcoming-release checker, and every detected transition is handed
// to the notifier exactly once.
//
// # Diffing model
//
// Each poller is a pure function of (current upstream state, last persisted
// snapshot) -> (events, new snapshot). Snapshots are upserted every cycle
// whether or not events fired, and a failed fetch abandons the cycle without
// persisting so the next cycle diffs from the last good state. The fixed poll
// interval is the retry backoff.
//
// # Isolation
//
// Pollers run concurrently and are joined before the cycle completes. Each
// task carries its own recover and error boundary: one dead upstream never
// stops the others, and nothing propagates past the join. Because a single
// timer drives all cycles (with an in-flight guard against overlap), two
// pollers for the same service never run concurrently, which makes the
// snapshot read-modify-write safe without locking.
package watcher
