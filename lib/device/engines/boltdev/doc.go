// Package boltdev implements the device.Device interface on top of a
// bbolt file. It is the durable engine: the store survives process
// restarts, and the version and expiry configuration recorded at first
// open are validated on every re-open.
//
// Implementation Details:
//
//   - Layout: a meta bucket holds the store header (version, expiry mode,
//     global expiry time, pool id counter); the pools and tags buckets map
//     pool ids to tags and back; each pool's entries live in their own
//     data bucket named by the pool id.
//
//   - Entry Encoding: values are stored as a fixed binary header (expiry
//     seconds, absolute unix expiry, generation count) followed by the
//     payload, big-endian throughout.
//
//   - Expiry: expired entries are invisible to reads and skipped by
//     cursors but stay in the file until overwritten or deleted. There is
//     no background reclamation in this engine.
//
//   - Cursors: each iterator holds a live bbolt read transaction, so it
//     walks a consistent snapshot of the pool. Open transactions pin
//     pages; the iterator budget is tighter than memdev's for that
//     reason, and every cursor must be released with EndIterator.
//
//   - Pool Deletion: pools are dropped synchronously inside a single
//     write transaction. The engine reports FeatureAsyncPoolReclaim as
//     unsupported.
//
// All operations are safe for concurrent use except cursors, which model
// the device's single-position iterators, and LastError, which reflects an
// intentionally unsynchronized errno slot.
package boltdev
