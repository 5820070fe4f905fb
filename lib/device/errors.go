package device

import "errors"

// Sentinel errors shared by all engines. The store layer maps these onto
// its typed return codes; engines wrap them with context via fmt.Errorf
// and %w where useful.
var (
	// ErrClosed is returned by any operation on a closed device.
	ErrClosed = errors.New("device: store is closed")

	// ErrVersionMismatch is returned by open when the caller-supplied
	// version does not match the version recorded on the device.
	ErrVersionMismatch = errors.New("device: store version mismatch")

	// ErrExpiryConfig is returned by open when the expiry configuration is
	// invalid, e.g. global mode without a positive expiry time.
	ErrExpiryConfig = errors.New("device: invalid expiry configuration")

	// ErrNotFound is returned when a key is absent.
	ErrNotFound = errors.New("device: key not found")

	// ErrPoolNotFound is returned when a pool id does not exist or the
	// pool has been deleted.
	ErrPoolNotFound = errors.New("device: pool not found")

	// ErrPoolLimit is returned when the store's pool count limit is
	// reached.
	ErrPoolLimit = errors.New("device: pool limit reached")

	// ErrProtectedPool is returned when deleting the default pool, which
	// only Destroy can remove.
	ErrProtectedPool = errors.New("device: pool is protected")

	// ErrTagTooLong is returned for pool tags above MaxPoolTag bytes.
	ErrTagTooLong = errors.New("device: pool tag too long")

	// ErrIteratorLimit is returned when no cursor slot is available.
	ErrIteratorLimit = errors.New("device: iterator slots exhausted")

	// ErrIteratorInvalid is returned for operations on an unknown or
	// already ended iterator id.
	ErrIteratorInvalid = errors.New("device: invalid iterator")

	// ErrBufferTooSmall is returned by reads whose destination buffer
	// cannot hold the stored value.
	ErrBufferTooSmall = errors.New("device: buffer too small")

	// ErrBatchFailed is the aggregate failure of a batch operation.
	// Individual entry outcomes are not determinable from it.
	ErrBatchFailed = errors.New("device: batch operation failed")

	// ErrIO is a byte-level I/O failure reported by the engine.
	ErrIO = errors.New("device: i/o failure")
)

// Errno codes for the legacy last-error channel. The numbering is local to
// this layer; it only needs to be stable, not POSIX.
const (
	EnoneOK          = 0
	EnotFound        = 2
	EpoolNotFound    = 3
	EversionMismatch = 4
	Eclosed          = 5
	ElimitReached    = 6
	Einvalid         = 7
	EbatchFailed     = 8
	Eio              = 9
)

// Errno converts an engine error into its legacy errno-style code.
func Errno(err error) int {
	switch {
	case err == nil:
		return EnoneOK
	case errors.Is(err, ErrNotFound):
		return EnotFound
	case errors.Is(err, ErrPoolNotFound):
		return EpoolNotFound
	case errors.Is(err, ErrVersionMismatch):
		return EversionMismatch
	case errors.Is(err, ErrClosed):
		return Eclosed
	case errors.Is(err, ErrPoolLimit), errors.Is(err, ErrIteratorLimit):
		return ElimitReached
	case errors.Is(err, ErrIteratorInvalid), errors.Is(err, ErrTagTooLong),
		errors.Is(err, ErrBufferTooSmall), errors.Is(err, ErrExpiryConfig),
		errors.Is(err, ErrProtectedPool):
		return Einvalid
	case errors.Is(err, ErrBatchFailed):
		return EbatchFailed
	default:
		return Eio
	}
}
