package kv

import (
	"errors"
	"unsafe"

	"github.com/flashkv/fKV/lib/device"
)

// --------------------------------------------------------------------------
// Allocation Errors
// --------------------------------------------------------------------------

var (
	// ErrAllocation is returned when an aligned buffer cannot be
	// allocated, including zero-length and oversized requests.
	ErrAllocation = errors.New("kv: aligned allocation failed")

	// ErrReleased is returned for operations on a buffer whose memory has
	// already been released.
	ErrReleased = errors.New("kv: buffer already released")

	// ErrUnaligned is returned when the payload memory handed to an
	// operation does not start on a sector boundary.
	ErrUnaligned = errors.New("kv: buffer is not sector-aligned")
)

// --------------------------------------------------------------------------
// Aligned Buffer
// --------------------------------------------------------------------------

// Buffer is a sector-aligned memory region for value payloads. The device
// performs DMA-style I/O and rejects unaligned memory, so every payload must
// live in a Buffer (or an equivalently aligned region).
//
// A Buffer is exclusively owned by the caller that allocated it until
// Release is called. No operation takes ownership or auto-frees on failure.
type Buffer struct {
	raw  []byte // over-allocated backing array
	data []byte // aligned window into raw
}

// Allocate returns a Buffer whose start address is aligned to the device
// sector size and whose capacity is length rounded up to the next sector
// boundary. Zero or negative lengths and lengths above the device maximum
// fail with ErrAllocation.
func Allocate(length int) (*Buffer, error) {
	if length <= 0 || length > device.MaxValueSize {
		return nil, ErrAllocation
	}

	rounded := (length + device.SectorSize - 1) / device.SectorSize * device.SectorSize

	// Go has no posix_memalign; over-allocate one sector and slice at the
	// first aligned offset. The raw slice keeps the backing array alive.
	raw := make([]byte, rounded+device.SectorSize)
	off := 0
	if rem := uintptr(unsafe.Pointer(&raw[0])) % device.SectorSize; rem != 0 {
		off = device.SectorSize - int(rem)
	}

	return &Buffer{
		raw:  raw,
		data: raw[off : off+rounded : off+rounded],
	}, nil
}

// Bytes returns the aligned memory window. The slice is nil after Release.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Cap returns the sector-rounded capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Aligned reports whether the buffer still holds memory and starts on a
// sector boundary.
func (b *Buffer) Aligned() bool {
	return b.data != nil && uintptr(unsafe.Pointer(&b.data[0]))%device.SectorSize == 0
}

// Released reports whether the buffer's memory has been released.
func (b *Buffer) Released() bool {
	return b.data == nil
}

// Release frees the buffer's memory and marks it as not holding data.
// Releasing an already released buffer is a caller error; operations on a
// released buffer fail with ErrReleased rather than corrupting state.
func (b *Buffer) Release() {
	b.data = nil
	b.raw = nil
}
