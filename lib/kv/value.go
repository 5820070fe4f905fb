package kv

import (
	"errors"
	"fmt"

	"github.com/flashkv/fKV/lib/device"
)

var (
	// ErrValueLength is returned when a value's declared length exceeds
	// its buffer capacity or the device maximum.
	ErrValueLength = errors.New("kv: value length out of bounds")

	// ErrNotAllocated is returned for values without a payload buffer.
	ErrNotAllocated = errors.New("kv: value is not allocated")
)

// KeyValueInfo is the caller-facing name of the per-key metadata record.
// Operations replace a Value's Info with a fresh authoritative copy of this
// record reported by the device.
type KeyValueInfo = device.KeyInfo

// WriteOptions carries the caller's write intent for a put: the expiry in
// seconds (ignored unless the store runs in arbitrary expiry mode) and the
// generation count for optimistic concurrency. Keeping the intent separate
// from the reported KeyValueInfo avoids stale reads of an in/out record.
type WriteOptions struct {
	Expiry   uint32
	GenCount uint32
}

// Value pairs a sector-aligned payload buffer with its metadata record.
// Len is the number of significant payload bytes: the caller sets it before
// a put, reads after a get. Info is output-only and repopulated wholesale by
// every operation that touches the value, even on partial failure where the
// device reports one.
type Value struct {
	Data *Buffer
	Len  int
	Info KeyValueInfo
}

// NewValue allocates an aligned Value able to hold size payload bytes.
// Release must be called on the returned value after use.
func NewValue(size int) (*Value, error) {
	buf, err := Allocate(size)
	if err != nil {
		return nil, err
	}
	return &Value{Data: buf, Len: size}, nil
}

// Bytes returns the significant payload bytes, Data[:Len].
func (v *Value) Bytes() []byte {
	if v.Data == nil || v.Data.Released() {
		return nil
	}
	return v.Data.Bytes()[:v.Len]
}

// SetBytes copies p into the payload buffer and sets Len accordingly.
func (v *Value) SetBytes(p []byte) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if len(p) > v.Data.Cap() {
		return fmt.Errorf("%w: %d exceeds buffer capacity %d", ErrValueLength, len(p), v.Data.Cap())
	}
	copy(v.Data.Bytes(), p)
	v.Len = len(p)
	return nil
}

// Validate checks that the value holds usable aligned memory and that its
// declared length fits both the buffer and the device maximum.
func (v *Value) Validate() error {
	if v.Data == nil {
		return ErrNotAllocated
	}
	if v.Data.Released() {
		return ErrReleased
	}
	if !v.Data.Aligned() {
		return ErrUnaligned
	}
	if v.Len < 0 || v.Len > v.Data.Cap() || v.Len > device.MaxValueSize {
		return fmt.Errorf("%w: %d", ErrValueLength, v.Len)
	}
	return nil
}

// Release frees the payload buffer. The metadata record is kept; the value
// no longer holds data afterwards.
func (v *Value) Release() {
	if v.Data != nil {
		v.Data.Release()
	}
	v.Len = 0
}
