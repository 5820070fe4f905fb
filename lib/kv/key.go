package kv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/flashkv/fKV/lib/device"
)

var (
	// ErrKeyLength is returned for keys outside 1..MaxKeySize bytes.
	ErrKeyLength = errors.New("kv: key length out of bounds")
)

// Key addresses one entry of a pool. Keys are plain bytes and carry no
// alignment requirement. Length is the number of significant bytes in
// Bytes; iteration updates it in place because keys vary in length across
// entries.
type Key struct {
	Length int
	Bytes  []byte
}

// NewKey creates a Key over the given bytes. The slice is referenced, not
// copied.
func NewKey(b []byte) Key {
	return Key{Length: len(b), Bytes: b}
}

// KeyFromString creates a Key from the bytes of s.
func KeyFromString(s string) Key {
	return NewKey([]byte(s))
}

// KeyFromUint64 creates an 8-byte Key from a numeric id.
func KeyFromUint64(id uint64) Key {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, id)
	return Key{Length: 8, Bytes: b}
}

// Uint64 interprets the key as a numeric id. The second return value is
// false when the key is not exactly 8 bytes long.
func (k Key) Uint64() (uint64, bool) {
	if k.Length != 8 || len(k.Bytes) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(k.Bytes[:8]), true
}

// Data returns the significant key bytes.
func (k Key) Data() []byte {
	return k.Bytes[:k.Length]
}

// Validate checks the key against the device bounds.
func (k Key) Validate() error {
	if k.Length < 1 || k.Length > device.MaxKeySize {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrKeyLength, k.Length, device.MaxKeySize)
	}
	if k.Bytes == nil || len(k.Bytes) < k.Length {
		return fmt.Errorf("%w: key bytes shorter than declared length", ErrKeyLength)
	}
	return nil
}

func (k Key) String() string {
	if id, ok := k.Uint64(); ok {
		return fmt.Sprintf("key(%d)", id)
	}
	return fmt.Sprintf("key(%q)", k.Data())
}
