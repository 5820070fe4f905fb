package internal

import (
	"time"

	"github.com/flashkv/fKV/lib/device/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with the metadata the device reports for its key.
type Entry struct {
	Value     []byte // Payload (exact length, engine-owned copy)
	ExpirySec uint32 // Configured expiry in seconds (0 = none)
	ExpireAt  int64  // Absolute unix expiry timestamp (0 = none)
	GenCount  uint32 // Caller-controlled generation count
}

// Expired reports whether the entry is past its expiry at the given time.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpireAt != 0 && now.Unix() >= e.ExpireAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of a pool's keyspace)
// --------------------------------------------------------------------------

// Shard represents a partition of a pool's keyspace with its own
// independent concurrent map.
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates an empty shard.
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given hashed key.
func GetShard(key util.UintKey, shards []*Shard) *Shard {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	return shards[shiftedKey%uint64(len(shards))]
}
