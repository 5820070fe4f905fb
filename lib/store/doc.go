// Package store is the client abstraction over a sector-addressed
// key/value storage device. It converts the narrow device capability
// interface (lib/device) into a coherent API with a well-defined
// lifecycle: callers open a Store, resolve Pools by tag, allocate aligned
// buffers through lib/kv, and run single or batched operations or open a
// cursor.
//
// Architecture:
//
//	caller
//	  └── store.Store ── store.Pool ── store.Iterator
//	         │
//	         └── device.Device (memdev, boltdev, ...)
//
// Error Handling:
//
//	Every operation returns a structured *Error carrying a RetCode from
//	the taxonomy in errors.go. The device's errno-style last-error slot is
//	retained as Store.LastError for compatibility; it is unsynchronized
//	and documented single-threaded-caller-only.
//
// Concurrency:
//
//	Store and Pool handles are safe for concurrent use. Mutating
//	operations on one pool are serialized because device-level
//	concurrent-write guarantees are unspecified. Iterators model the
//	device's single-position cursors and must stay confined to one
//	goroutine.
//
// Buffer Ownership:
//
//	Value payloads live in sector-aligned buffers owned by the caller
//	that allocated them. No operation takes ownership or releases a
//	caller's buffer, also not on failure.
package store
