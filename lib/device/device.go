package device

// --------------------------------------------------------------------------
// Device Limits and Constants
// --------------------------------------------------------------------------

// Limits of the reference device generation. Engines may support less but
// never more; the client layer validates against these bounds before any
// request reaches an engine.
const (
	// SectorSize is the alignment and rounding unit for all value payloads.
	SectorSize = 512

	// MaxKeySize is the maximum key length in bytes.
	MaxKeySize = 128

	// MaxValueSize is the maximum value length in bytes (1MiB - 1KiB).
	MaxValueSize = 1024 * 1023

	// MaxBatchSize is the maximum number of elements per batch operation.
	MaxBatchSize = 16

	// MaxPools is the maximum number of pools on a store, the default
	// pool included.
	MaxPools = 1024

	// MaxPoolTag is the maximum length of a pool tag in bytes.
	MaxPoolTag = 16

	// DefaultPoolID is the id of the pool every store starts out with.
	// It cannot be deleted.
	DefaultPoolID = 0

	// DefaultAPIVersion is the version recorded on a store when the
	// caller does not choose one.
	DefaultAPIVersion = 1
)

// Implementation identifies a device engine.
type Implementation string

const (
	ImplMem  Implementation = "memdev"
	ImplBolt Implementation = "boltdev"
)

// --------------------------------------------------------------------------
// Expiry Modes
// --------------------------------------------------------------------------

// ExpiryMode selects the key expiration policy of a store. The mode is
// fixed at first open and persisted by the device.
type ExpiryMode int

const (
	// ExpiryDisabled turns key expiration off. Per-key expiry values are
	// ignored.
	ExpiryDisabled ExpiryMode = iota
	// ExpiryArbitrary lets every put choose its own expiry in seconds.
	ExpiryArbitrary
	// ExpiryGlobal applies one store-wide TTL to every key. Requires a
	// positive expiry time at open.
	ExpiryGlobal
)

func (m ExpiryMode) String() string {
	switch m {
	case ExpiryDisabled:
		return "disabled"
	case ExpiryArbitrary:
		return "arbitrary"
	case ExpiryGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Feature Flags
// --------------------------------------------------------------------------

// Feature represents device capabilities as bit flags
type Feature uint64

const (
	FeatureBatchGet    Feature = 1 << iota // Support for batched reads
	FeatureBatchDelete                     // Support for batched deletes
	FeatureGlobalExpiry                    // Support for a store-wide TTL
	FeaturePersistence                     // Data survives Close/re-open of the process
	FeatureAsyncPoolReclaim                // Pool deletion reclaims space in the background
)

func (f Feature) String() string {
	switch f {
	case FeatureBatchGet:
		return "BatchGet"
	case FeatureBatchDelete:
		return "BatchDelete"
	case FeatureGlobalExpiry:
		return "GlobalExpiry"
	case FeaturePersistence:
		return "Persistence"
	case FeatureAsyncPoolReclaim:
		return "AsyncPoolReclaim"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// StoreInfo is the read-only metadata record of an open store.
type StoreInfo struct {
	Version    uint32         `json:"version"`
	NumPools   int            `json:"num_pools"`
	MaxPools   int            `json:"max_pools"`
	ExpiryMode ExpiryMode     `json:"expiry_mode"`
	NumKeys    uint64         `json:"num_keys"`
	FreeSpace  uint64         `json:"free_space"`
	Impl       Implementation `json:"impl"`
}

// PoolInfo describes one pool on a store.
type PoolInfo struct {
	ID  int    `json:"id"`
	Tag string `json:"tag"`
}

// KeyInfo is the authoritative per-key metadata record reported by the
// device. Every operation that touches a key returns a fresh copy.
type KeyInfo struct {
	PoolID   int    `json:"pool_id"`
	KeyLen   int    `json:"key_len"`
	ValueLen int    `json:"value_len"`
	Expiry   uint32 `json:"expiry"`
	GenCount uint32 `json:"gen_count"`
}

// BatchEntry is one element of a batched write. Data must be an exact-length
// payload slice; the client layer is responsible for alignment checks before
// building entries.
type BatchEntry struct {
	Key      []byte
	Data     []byte
	Expiry   uint32
	GenCount uint32
}

// Options configures a store at open time. Version is validated against the
// version recorded on the device at first use; a mismatch fails the open.
type Options struct {
	Version    uint32
	ExpiryMode ExpiryMode
	ExpiryTime uint32 // seconds, only meaningful for ExpiryGlobal
}

// Factory opens a device engine for the store at path. This mirrors the
// factory-injection pattern of the store layer: the client never constructs
// an engine directly.
type Factory func(path string, opts Options) (Device, error)

// --------------------------------------------------------------------------
// Device Interface
// --------------------------------------------------------------------------

// Device is the narrow capability interface to the underlying storage
// engine. All methods are synchronous and may block on I/O; there is no
// cancellation primitive at this layer.
//
// Concurrency: engines must tolerate concurrent reads on distinct keys.
// Concurrent writes, batches and iterators on the same pool are
// engine-defined; the client layer serializes mutating calls per pool.
type Device interface {

	// --------------------------------------------------------------------------
	// Store Lifecycle
	// --------------------------------------------------------------------------

	// Close flushes and releases the device handle. The Device is unusable
	// afterwards; every other method returns ErrClosed.
	Close() error

	// Destroy irreversibly erases all pools, keys and values on the device,
	// then closes it. This is the only destructive, non-recoverable
	// operation on the interface.
	Destroy() error

	// Info returns the store metadata record. Read-only, no side effects.
	Info() (StoreInfo, error)

	// SetGlobalExpiry pushes a store-wide TTL in seconds to the device.
	// Only valid in ExpiryGlobal mode.
	SetGlobalExpiry(seconds uint32) error

	// --------------------------------------------------------------------------
	// Pool Lifecycle
	// --------------------------------------------------------------------------

	// GetOrCreatePool returns the pool with the given tag, creating it if
	// it does not exist. Idempotent by tag.
	GetOrCreatePool(tag string) (PoolInfo, error)

	// Pools lists all pools including the default pool. The listing may
	// under-report; callers double-check the count via Info.
	Pools() ([]PoolInfo, error)

	// DeletePool deletes one pool. The pool becomes unusable immediately;
	// space reclamation may complete asynchronously, so Info's pool count
	// may lag behind.
	DeletePool(id int) error

	// DeleteAllPools deletes every pool except the default pool.
	DeleteAllPools() error

	// --------------------------------------------------------------------------
	// Single-Item Operations
	// --------------------------------------------------------------------------

	// Get reads the value stored under key into buf and returns the number
	// of bytes read plus the authoritative metadata record. buf must be
	// large enough for the stored value.
	Get(pool int, key []byte, buf []byte) (int, KeyInfo, error)

	// Put inserts or replaces the pair (unconditional upsert) and returns
	// the post-write metadata record.
	Put(pool int, key, data []byte, expiry, genCount uint32) (KeyInfo, error)

	// Exists reports whether key is present. info must never be nil; the
	// caller substitutes a scratch record when it has no use for the
	// metadata.
	Exists(pool int, key []byte, info *KeyInfo) (bool, error)

	// Delete removes the pair. Returns ErrNotFound if the key is absent.
	Delete(pool int, key []byte) error

	// KeyInfo returns the metadata record for key without transferring the
	// payload.
	KeyInfo(pool int, key []byte) (KeyInfo, error)

	// DeleteAll removes every key/value pair from every pool, keeping the
	// pool identities intact.
	DeleteAll() error

	// --------------------------------------------------------------------------
	// Batch Operations
	// --------------------------------------------------------------------------

	// BatchPut executes the entries as one device call. There is no
	// atomicity guarantee across entries: on error, a subset of the
	// entries may have been applied. On success the returned records
	// correspond to the entries in input order.
	BatchPut(pool int, entries []BatchEntry) ([]KeyInfo, error)

	// BatchGet reads the values for keys into the parallel bufs slices.
	// Same non-atomicity contract as BatchPut.
	BatchGet(pool int, keys [][]byte, bufs [][]byte) ([]KeyInfo, error)

	// BatchDelete removes the keys as one device call.
	BatchDelete(pool int, keys [][]byte) error

	// --------------------------------------------------------------------------
	// Iteration
	// --------------------------------------------------------------------------

	// BeginIterator creates a cursor over the pool's keyspace, positioned
	// before the first entry. Cursor slots are a bounded resource; every
	// cursor must be released with EndIterator.
	BeginIterator(pool int) (int, error)

	// Next advances the cursor one step. Returns false when the cursor is
	// exhausted; repeated calls after exhaustion keep returning false.
	Next(iter int) (bool, error)

	// GetCurrent reads the key and value at the cursor position into the
	// caller-supplied buffers and returns the key length written plus the
	// metadata record. Calling it before the first successful Next is a
	// caller error.
	GetCurrent(iter int, keyBuf, valBuf []byte) (int, KeyInfo, error)

	// EndIterator releases the cursor slot. The iterator id is invalid
	// afterwards.
	EndIterator(iter int) error

	// --------------------------------------------------------------------------
	// Diagnostics
	// --------------------------------------------------------------------------

	// LastError returns the errno-style code of the most recent failed
	// operation. The underlying slot is a single shared, unsynchronized
	// value: concurrent operations race to overwrite it. Single-threaded
	// callers only; prefer the structured errors returned by each call.
	LastError() int

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR.
	SupportsFeature(f Feature) bool
}
