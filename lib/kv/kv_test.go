package kv

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"github.com/flashkv/fKV/lib/device"
)

func TestAllocateAlignment(t *testing.T) {
	sizes := []int{1, 37, 511, 512, 513, 4096, device.MaxValueSize}

	for _, size := range sizes {
		buf, err := Allocate(size)
		if err != nil {
			t.Fatalf("Allocate(%d) failed: %v", size, err)
		}

		if addr := uintptr(unsafe.Pointer(&buf.Bytes()[0])); addr%device.SectorSize != 0 {
			t.Errorf("Allocate(%d): start address %#x not sector-aligned", size, addr)
		}

		expected := (size + device.SectorSize - 1) / device.SectorSize * device.SectorSize
		if buf.Cap() != expected {
			t.Errorf("Allocate(%d): expected capacity %d, got %d", size, expected, buf.Cap())
		}

		buf.Release()
	}
}

func TestAllocateBounds(t *testing.T) {
	if _, err := Allocate(0); !errors.Is(err, ErrAllocation) {
		t.Errorf("Expected ErrAllocation for zero length, got %v", err)
	}
	if _, err := Allocate(-1); !errors.Is(err, ErrAllocation) {
		t.Errorf("Expected ErrAllocation for negative length, got %v", err)
	}
	if _, err := Allocate(device.MaxValueSize + 1); !errors.Is(err, ErrAllocation) {
		t.Errorf("Expected ErrAllocation above the device maximum, got %v", err)
	}
}

func TestBufferRelease(t *testing.T) {
	buf, err := Allocate(64)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if buf.Released() {
		t.Errorf("Fresh buffer must not report released")
	}
	if !buf.Aligned() {
		t.Errorf("Fresh buffer must report aligned")
	}

	buf.Release()

	if !buf.Released() {
		t.Errorf("Buffer must report released after Release")
	}
	if buf.Aligned() {
		t.Errorf("Released buffer must not report aligned")
	}
	if buf.Bytes() != nil {
		t.Errorf("Released buffer must not expose memory")
	}
}

func TestKeyValidation(t *testing.T) {
	if err := NewKey([]byte("user:42")).Validate(); err != nil {
		t.Errorf("Valid key rejected: %v", err)
	}
	if err := NewKey(make([]byte, device.MaxKeySize)).Validate(); err != nil {
		t.Errorf("Maximum-size key rejected: %v", err)
	}

	if err := NewKey(nil).Validate(); !errors.Is(err, ErrKeyLength) {
		t.Errorf("Expected ErrKeyLength for empty key, got %v", err)
	}
	if err := NewKey(make([]byte, device.MaxKeySize+1)).Validate(); !errors.Is(err, ErrKeyLength) {
		t.Errorf("Expected ErrKeyLength above the maximum, got %v", err)
	}

	short := Key{Length: 10, Bytes: []byte("abc")}
	if err := short.Validate(); !errors.Is(err, ErrKeyLength) {
		t.Errorf("Expected ErrKeyLength for a length past the buffer, got %v", err)
	}
}

func TestKeyUint64(t *testing.T) {
	k := KeyFromUint64(123456789)
	if err := k.Validate(); err != nil {
		t.Fatalf("Numeric key rejected: %v", err)
	}

	id, ok := k.Uint64()
	if !ok || id != 123456789 {
		t.Errorf("Expected id 123456789, got %d (ok=%v)", id, ok)
	}

	if _, ok := KeyFromString("user:42").Uint64(); ok {
		t.Errorf("A non-8-byte key must not decode as uint64")
	}
}

func TestValueSetBytes(t *testing.T) {
	v, err := NewValue(4096)
	if err != nil {
		t.Fatalf("NewValue failed: %v", err)
	}
	defer v.Release()

	payload := []byte("a thirty-seven byte test payload here")
	if len(payload) != 37 {
		t.Fatalf("Test payload must be 37 bytes, got %d", len(payload))
	}

	if err := v.SetBytes(payload); err != nil {
		t.Fatalf("SetBytes failed: %v", err)
	}
	if v.Len != 37 {
		t.Errorf("Expected Len 37, got %d", v.Len)
	}
	if !bytes.Equal(v.Bytes(), payload) {
		t.Errorf("Payload mismatch: %q", v.Bytes())
	}

	oversized := make([]byte, v.Data.Cap()+1)
	if err := v.SetBytes(oversized); !errors.Is(err, ErrValueLength) {
		t.Errorf("Expected ErrValueLength for an oversized payload, got %v", err)
	}
}

func TestValueValidate(t *testing.T) {
	var unallocated Value
	if err := unallocated.Validate(); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Expected ErrNotAllocated, got %v", err)
	}

	v, err := NewValue(512)
	if err != nil {
		t.Fatalf("NewValue failed: %v", err)
	}

	if err := v.Validate(); err != nil {
		t.Errorf("Fresh value rejected: %v", err)
	}

	v.Len = v.Data.Cap() + 1
	if err := v.Validate(); !errors.Is(err, ErrValueLength) {
		t.Errorf("Expected ErrValueLength for Len past capacity, got %v", err)
	}
	v.Len = 512

	v.Release()
	if err := v.Validate(); !errors.Is(err, ErrReleased) {
		t.Errorf("Expected ErrReleased after Release, got %v", err)
	}
	if v.Bytes() != nil {
		t.Errorf("Released value must not expose payload bytes")
	}
}
