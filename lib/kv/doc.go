// Package kv is the data-model layer of fKV: the Key, Value and
// KeyValueInfo records exchanged with the device, and the sector-aligned
// Buffer allocator backing all value payloads.
//
// The package focuses on:
//   - Alignment: the device performs DMA-capable I/O and only accepts
//     payload memory starting on a sector boundary. Allocate rounds every
//     request up to the next sector and returns an aligned window into an
//     over-allocated backing array.
//   - Ownership: a Buffer belongs to the caller that allocated it until
//     Release. Operations never free caller memory, not even on failure.
//   - Metadata discipline: write intent travels in an explicit WriteOptions
//     value while the device-reported KeyValueInfo is output-only and
//     replaced wholesale after each operation, so callers never read stale
//     in/out state.
//
// Keys are ordinary byte strings between 1 and device.MaxKeySize bytes and
// carry no alignment requirement.
package kv
