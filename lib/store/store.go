package store

import (
	"sync/atomic"

	"github.com/flashkv/fKV/lib/device"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store is an open connection to one device/file and its key/value
// namespace. A Store is either open or closed; every operation except Open
// fails with RetCClosed on a closed store. Stores are safe for concurrent
// use; mutating operations on a single pool are serialized by the pool.
type Store struct {
	path    string
	dev     device.Device
	closed  atomic.Bool
	pools   *xsync.MapOf[string, *Pool]
	defPool *Pool
}

// Open opens (or creates) a store at path through the given engine
// factory. If opts.Version is zero, DefaultAPIVersion is used. In global
// expiry mode the store-wide TTL is pushed to the device right after open;
// a failure to set it closes the store and fails the open as a unit.
func Open(factory device.Factory, path string, opts device.Options) (*Store, error) {
	if factory == nil {
		panic("store: nil engine factory")
	}
	if path == "" {
		return nil, NewError(RetCConfig, "empty store path")
	}
	if opts.Version == 0 {
		opts.Version = device.DefaultAPIVersion
	}
	if opts.ExpiryMode == device.ExpiryGlobal && opts.ExpiryTime == 0 {
		return nil, NewError(RetCConfig, "global expiry mode requires a positive expiry time")
	}

	dev, err := factory(path, opts)
	if err != nil {
		return nil, fromDevice(err)
	}

	if opts.ExpiryMode == device.ExpiryGlobal {
		if err := dev.SetGlobalExpiry(opts.ExpiryTime); err != nil {
			_ = dev.Close()
			return nil, fromDevice(err)
		}
	}

	s := &Store{
		path:  path,
		dev:   dev,
		pools: xsync.NewMapOf[string, *Pool](),
	}
	s.defPool = &Pool{store: s, id: device.DefaultPoolID, tag: "default"}
	return s, nil
}

// Path returns the store's device or file path.
func (s *Store) Path() string {
	return s.path
}

// IsOpen reports whether the store is usable.
func (s *Store) IsOpen() bool {
	return !s.closed.Load()
}

func (s *Store) guard() *Error {
	if s.closed.Load() {
		return Errorf(RetCClosed, "store %s is closed", s.path)
	}
	return nil
}

// Close flushes and releases the device handle. Closing an already closed
// store is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.dev.Close(); err != nil {
		return fromDevice(err)
	}
	return nil
}

// Destroy irreversibly erases every pool, key and value on the device and
// closes the store. There is no undo.
func (s *Store) Destroy() error {
	if err := s.guard(); err != nil {
		return err
	}
	s.closed.Store(true)
	if err := s.dev.Destroy(); err != nil {
		return fromDevice(err)
	}
	return nil
}

// Info returns store-wide metadata: version, pool counts, expiry mode, key
// count and free space. Read-only, no side effects.
func (s *Store) Info() (device.StoreInfo, error) {
	if err := s.guard(); err != nil {
		return device.StoreInfo{}, err
	}
	countOp("info")
	info, err := s.dev.Info()
	if err != nil {
		return device.StoreInfo{}, countErr("info", fromDevice(err))
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Pool Lifecycle
// --------------------------------------------------------------------------

// DefaultPool returns the store's always-present default pool.
func (s *Store) DefaultPool() *Pool {
	return s.defPool
}

// GetOrCreatePool resolves a pool by tag, creating it if needed. The
// operation is idempotent on the tag: requesting an existing tag returns
// its existing pool instead of allocating a new one.
func (s *Store) GetOrCreatePool(tag string) (*Pool, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if tag == "" || len(tag) > device.MaxPoolTag {
		return nil, countErr("pool_create",
			Errorf(RetCValidation, "pool tag length %d not in [1, %d]", len(tag), device.MaxPoolTag))
	}
	if p, ok := s.pools.Load(tag); ok {
		return p, nil
	}

	countOp("pool_create")
	info, err := s.dev.GetOrCreatePool(tag)
	if err != nil {
		return nil, countErr("pool_create", fromDevice(err))
	}

	// The device dedupes by tag, so a racing create resolves to the same
	// pool id and either cached handle is valid.
	p, _ := s.pools.LoadOrStore(tag, &Pool{store: s, id: info.ID, tag: info.Tag})
	return p, nil
}

// Pools lists the store's pools. The device's listing call is known to
// under-report the pool count, so the result is cross-checked against a
// fresh Info query and truncated to the authoritative count.
func (s *Store) Pools() ([]device.PoolInfo, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	countOp("pool_list")
	listed, err := s.dev.Pools()
	if err != nil {
		return nil, countErr("pool_list", fromDevice(err))
	}
	info, err := s.dev.Info()
	if err != nil {
		return nil, countErr("pool_list", fromDevice(err))
	}

	// NumPools excludes the default pool, the listing includes it.
	authoritative := int(info.NumPools) + 1
	if len(listed) > authoritative {
		listed = listed[:authoritative]
	}
	return listed, nil
}

// DeletePool deletes a pool. Deletion is asynchronous at the device: the
// pool becomes immediately unusable, but the store-wide pool count only
// drops once the device finishes reclamation. The default pool cannot be
// deleted.
func (s *Store) DeletePool(p *Pool) error {
	if p == nil {
		panic("store: DeletePool requires a pool")
	}
	if err := s.guard(); err != nil {
		return err
	}

	countOp("pool_delete")
	if err := s.dev.DeletePool(p.id); err != nil {
		return countErr("pool_delete", fromDevice(err))
	}
	s.pools.Delete(p.tag)
	return nil
}

// DeleteAllPools deletes every pool except the default pool. Each deletion
// follows the asynchronous two-phase contract of DeletePool.
func (s *Store) DeleteAllPools() error {
	if err := s.guard(); err != nil {
		return err
	}

	countOp("pool_delete_all")
	if err := s.dev.DeleteAllPools(); err != nil {
		return countErr("pool_delete_all", fromDevice(err))
	}
	s.pools.Clear()
	return nil
}

// DeleteAll removes every key/value pair from every pool, including the
// default pool, without deleting pool identities.
func (s *Store) DeleteAll() error {
	if err := s.guard(); err != nil {
		return err
	}

	countOp("delete_all")
	if err := s.dev.DeleteAll(); err != nil {
		return countErr("delete_all", fromDevice(err))
	}
	return nil
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

// LastError returns the device's last errno-style error slot. The slot is
// shared and unsynchronized: concurrent operations race to overwrite it
// before it is read. It exists for compatibility with single-threaded
// callers only; prefer the structured *Error every operation returns.
func (s *Store) LastError() int {
	return s.dev.LastError()
}
