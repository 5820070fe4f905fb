// Package memdev implements the device.Device interface with an in-memory
// simulated device. Each pool's keyspace is partitioned into shards of
// concurrent maps selected by a seeded FNV-1a hash of the key bytes, so
// operations on distinct keys proceed without contention.
//
// Implementation Details:
//
//   - Path Registry: opened stores are recorded in a package-level registry
//     keyed by path. A re-open of the same path within the process validates
//     the caller-supplied version and expiry mode against the recorded
//     configuration, mirroring the persisted store header of a real device.
//     Destroy removes the registry entry.
//
//   - Two-Phase Pool Deletion: DeletePool flips a flag that makes the pool
//     immediately unusable; a background reclamation loop later clears its
//     shards and removes it from the store maps. The store-wide pool count
//     only drops once reclamation completes, which is exactly the
//     eventually-consistent behavior callers of a real device observe.
//
//   - Expiry: entries carry an absolute unix expiry timestamp resolved at
//     put time from the store's expiry mode. Expired entries are invisible
//     to reads and dropped by the reclamation loop.
//
//   - Cursors: iterators snapshot the keys present at creation, visit them
//     in engine-defined order and skip entries deleted mid-iteration.
//     Cursor slots are bounded; every cursor must be released with
//     EndIterator.
//
// Thread Safety:
//
//	All operations are safe for concurrent use except cursors, which model
//	the device's single-position iterators and must not be shared across
//	goroutines, and LastError, which reflects an intentionally
//	unsynchronized errno slot.
//
// Data is not persisted between process restarts; the engine reports
// FeaturePersistence as unsupported. For a durable store use the boltdev
// engine instead.
package memdev
