// Package device defines the narrow capability interface between the fKV
// client abstraction and a sector-addressed key/value storage engine, along
// with the metadata records, limits, sentinel errors and feature flags the
// two sides share.
//
// The package focuses on:
//   - A single interface (Device) covering the seven operation categories of
//     the underlying storage SDK: store lifecycle, pool lifecycle,
//     single-item operations, batch operations, iteration, diagnostics and
//     bulk erase
//   - Pluggable engine architecture through the Factory pattern
//
// Key Components:
//
//   - Device Interface: The contract every engine implements. Operations are
//     synchronous, return structured errors, and never take ownership of
//     caller buffers. Engines differ in durability and concurrency
//     characteristics, which they advertise through feature flags.
//
//   - Records: StoreInfo, PoolInfo and KeyInfo mirror the metadata
//     structures of the reference device. KeyInfo is the authoritative
//     record a device reports for a key; the client layer repopulates its
//     caller-visible metadata from it after every operation.
//
//   - Sentinel Errors and Errno: Engines fail with wrapped sentinel errors.
//     The errno-style codes exist only to serve the legacy last-error
//     channel, which is documented as unsafe under concurrency.
//
// Implementations:
//
//	Two engines ship with fKV:
//
//	- memdev: an in-memory engine with sharded concurrent maps, wall-clock
//	  expiry and background pool reclamation. Suitable for tests and
//	  ephemeral stores. Available in
//	  "github.com/flashkv/fKV/lib/device/engines/memdev".
//
//	- boltdev: a file-backed engine on bbolt that persists the store
//	  version and expiry configuration across re-opens. Available in
//	  "github.com/flashkv/fKV/lib/device/engines/boltdev".
//
// The conformance suite in "github.com/flashkv/fKV/lib/device/testing"
// exercises any Device implementation against the shared contract.
package device
