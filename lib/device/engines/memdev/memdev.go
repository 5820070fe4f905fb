package memdev

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/device/engines/memdev/internal"
	"github.com/flashkv/fKV/lib/device/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultCapacity        = 1 << 30               // Simulated device capacity
	defaultReclaimInterval = 50 * time.Millisecond // Interval between reclamation runs
	maxIterators           = 128                   // Cursor slots per store
)

// --------------------------------------------------------------------------
// Engine Options
// --------------------------------------------------------------------------

// EngineOptions configures the memdev engine at first open of a path.
// Later opens of the same path reuse the recorded configuration.
type EngineOptions struct {
	NumShards       int           // Shards per pool (0 = number of CPUs)
	ReclaimInterval time.Duration // Time between reclamation runs (0 = default)
	Capacity        uint64        // Simulated device capacity in bytes (0 = 1 GiB)
}

// DefaultOptions returns the default memdev options
func DefaultOptions() *EngineOptions {
	return &EngineOptions{
		NumShards:       runtime.NumCPU(),
		ReclaimInterval: defaultReclaimInterval,
		Capacity:        defaultCapacity,
	}
}

// --------------------------------------------------------------------------
// Store State and Registry
// --------------------------------------------------------------------------

// registry holds the simulated devices by path. A store's version and
// expiry configuration are recorded here at first open, so re-opening a
// path validates against them the way the real device validates the
// persisted store header.
var registry = xsync.NewMapOf[string, *storeState]()

// storeState is the device-side state of one store. Handles returned by
// Open share it.
type storeState struct {
	seed            uint64
	version         uint32
	mode            device.ExpiryMode
	numShards       int
	capacity        uint64
	reclaimInterval time.Duration

	globalExpiry atomic.Uint32

	pools      *xsync.MapOf[int, *pool]
	tags       *xsync.MapOf[string, int]
	nextPoolID atomic.Int64

	numKeys   atomic.Int64
	usedBytes atomic.Int64

	iters      *xsync.MapOf[int, *cursor]
	nextIterID atomic.Int64
	iterCount  atomic.Int64

	reclaimRunning atomic.Bool
	reclaimStop    chan struct{}
}

// pool is one logical partition of a store's keyspace. Deletion is
// two-phase: deleted flips immediately and revokes usability, the
// reclamation loop later clears the shards and drops the pool from the
// store maps.
type pool struct {
	id      int
	tag     string
	deleted atomic.Bool
	shards  []*internal.Shard
}

func newPool(id int, tag string, numShards int) *pool {
	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return &pool{id: id, tag: tag, shards: shards}
}

// shardFor returns the shard holding the given key bytes.
func (s *storeState) shardFor(p *pool, key []byte) *internal.Shard {
	return internal.GetShard(util.HashBytes(key, s.seed), p.shards)
}

func newStoreState(opts device.Options, eopts *EngineOptions) *storeState {
	if eopts == nil {
		eopts = DefaultOptions()
	}
	if eopts.NumShards <= 0 {
		eopts.NumShards = runtime.NumCPU()
	}
	if eopts.ReclaimInterval <= 0 {
		eopts.ReclaimInterval = defaultReclaimInterval
	}
	if eopts.Capacity == 0 {
		eopts.Capacity = defaultCapacity
	}

	s := &storeState{
		seed:            util.GenerateSeed(),
		version:         opts.Version,
		mode:            opts.ExpiryMode,
		numShards:       eopts.NumShards,
		capacity:        eopts.Capacity,
		reclaimInterval: eopts.ReclaimInterval,
		pools:           xsync.NewMapOf[int, *pool](),
		tags:            xsync.NewMapOf[string, int](),
		iters:           xsync.NewMapOf[int, *cursor](),
		reclaimStop:     make(chan struct{}),
	}

	// Every store starts out with the protected default pool.
	s.pools.Store(device.DefaultPoolID, newPool(device.DefaultPoolID, "default", s.numShards))

	return s
}

// --------------------------------------------------------------------------
// Open
// --------------------------------------------------------------------------

// Open opens (or creates) the simulated device at path. It implements
// device.Factory.
func Open(path string, opts device.Options) (device.Device, error) {
	return OpenWith(path, opts, nil)
}

// OpenWith opens the simulated device at path with engine-specific options.
// Engine options only take effect when the path is opened for the first
// time.
func OpenWith(path string, opts device.Options, eopts *EngineOptions) (device.Device, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", device.ErrExpiryConfig)
	}
	if opts.ExpiryMode == device.ExpiryGlobal && opts.ExpiryTime == 0 {
		return nil, fmt.Errorf("%w: global mode requires a positive expiry time", device.ErrExpiryConfig)
	}

	state, loaded := registry.LoadOrCompute(path, func() *storeState {
		return newStoreState(opts, eopts)
	})
	if loaded {
		// Re-open: the recorded configuration is authoritative.
		if state.version != opts.Version {
			return nil, fmt.Errorf("%w: store has version %d, caller requested %d",
				device.ErrVersionMismatch, state.version, opts.Version)
		}
		if state.mode != opts.ExpiryMode {
			return nil, fmt.Errorf("%w: store was created with expiry mode %s",
				device.ErrExpiryConfig, state.mode)
		}
	}

	state.startReclaim()

	return &devImpl{path: path, state: state}, nil
}

// --------------------------------------------------------------------------
// Device Handle
// --------------------------------------------------------------------------

// devImpl is one open handle onto a store.
type devImpl struct {
	path  string
	state *storeState

	closed atomic.Bool

	// lastErr is the legacy errno slot. It is written without
	// synchronization on purpose: the contract of LastError is
	// single-threaded-caller-only.
	lastErr int
}

// guard rejects operations on a closed handle.
func (d *devImpl) guard() error {
	if d.closed.Load() {
		return d.fail(device.ErrClosed)
	}
	return nil
}

// fail records err in the legacy errno slot and passes it through.
func (d *devImpl) fail(err error) error {
	if err != nil {
		d.lastErr = device.Errno(err)
	}
	return err
}

// getPool resolves a usable pool. Logically deleted pools are already
// unusable even when reclamation has not dropped them yet.
func (d *devImpl) getPool(id int) (*pool, error) {
	p, ok := d.state.pools.Load(id)
	if !ok || p.deleted.Load() {
		return nil, fmt.Errorf("%w: id %d", device.ErrPoolNotFound, id)
	}
	return p, nil
}

func (d *devImpl) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *devImpl) Destroy() error {
	// Destroy works on closed handles too: it addresses the device, not
	// the handle.
	d.closed.Store(true)
	state, ok := registry.LoadAndDelete(d.path)
	if !ok {
		return nil
	}
	state.stopReclaim()
	return nil
}

func (d *devImpl) Info() (device.StoreInfo, error) {
	if err := d.guard(); err != nil {
		return device.StoreInfo{}, err
	}

	// The default pool does not count towards num_pools.
	numPools := 0
	d.state.pools.Range(func(id int, _ *pool) bool {
		if id != device.DefaultPoolID {
			numPools++
		}
		return true
	})

	used := uint64(d.state.usedBytes.Load())
	free := uint64(0)
	if used < d.state.capacity {
		free = d.state.capacity - used
	}

	return device.StoreInfo{
		Version:    d.state.version,
		NumPools:   numPools,
		MaxPools:   device.MaxPools,
		ExpiryMode: d.state.mode,
		NumKeys:    uint64(d.state.numKeys.Load()),
		FreeSpace:  free,
		Impl:       device.ImplMem,
	}, nil
}

func (d *devImpl) SetGlobalExpiry(seconds uint32) error {
	if err := d.guard(); err != nil {
		return err
	}
	if d.state.mode != device.ExpiryGlobal {
		return d.fail(fmt.Errorf("%w: store is in %s mode", device.ErrExpiryConfig, d.state.mode))
	}
	if seconds == 0 {
		return d.fail(fmt.Errorf("%w: global expiry must be positive", device.ErrExpiryConfig))
	}
	d.state.globalExpiry.Store(seconds)
	return nil
}

func (d *devImpl) LastError() int {
	return d.lastErr
}

func (d *devImpl) SupportsFeature(f device.Feature) bool {
	supported := device.FeatureBatchGet |
		device.FeatureBatchDelete |
		device.FeatureGlobalExpiry |
		device.FeatureAsyncPoolReclaim
	return supported&f == f
}

// --------------------------------------------------------------------------
// Pool Lifecycle
// --------------------------------------------------------------------------

func (d *devImpl) GetOrCreatePool(tag string) (device.PoolInfo, error) {
	if err := d.guard(); err != nil {
		return device.PoolInfo{}, err
	}
	if tag == "" {
		return device.PoolInfo{}, d.fail(fmt.Errorf("%w: empty tag", device.ErrTagTooLong))
	}
	if len(tag) > device.MaxPoolTag {
		return device.PoolInfo{}, d.fail(fmt.Errorf("%w: %q is %d bytes, max %d",
			device.ErrTagTooLong, tag, len(tag), device.MaxPoolTag))
	}

	var createErr error
	id, _ := d.state.tags.LoadOrCompute(tag, func() int {
		if d.poolCount() >= device.MaxPools {
			createErr = fmt.Errorf("%w: %d pools", device.ErrPoolLimit, device.MaxPools)
			return -1
		}
		newID := int(d.state.nextPoolID.Add(1))
		d.state.pools.Store(newID, newPool(newID, tag, d.state.numShards))
		return newID
	})
	if createErr != nil {
		d.state.tags.Delete(tag)
		return device.PoolInfo{}, d.fail(createErr)
	}

	// The tag may map to a pool whose deletion is pending reclamation;
	// from the caller's view that pool is gone, so the tag is reusable
	// only after reclamation completes.
	p, err := d.getPool(id)
	if err != nil {
		return device.PoolInfo{}, d.fail(err)
	}

	return device.PoolInfo{ID: p.id, Tag: p.tag}, nil
}

func (d *devImpl) poolCount() int {
	n := 0
	d.state.pools.Range(func(int, *pool) bool {
		n++
		return true
	})
	return n
}

func (d *devImpl) Pools() ([]device.PoolInfo, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}

	infos := make([]device.PoolInfo, 0, 8)
	d.state.pools.Range(func(id int, p *pool) bool {
		if !p.deleted.Load() {
			infos = append(infos, device.PoolInfo{ID: id, Tag: p.tag})
		}
		return true
	})
	return infos, nil
}

func (d *devImpl) DeletePool(id int) error {
	if err := d.guard(); err != nil {
		return err
	}
	if id == device.DefaultPoolID {
		return d.fail(fmt.Errorf("%w: default pool", device.ErrProtectedPool))
	}
	p, err := d.getPool(id)
	if err != nil {
		return d.fail(err)
	}

	// Phase one: revoke usability immediately. The reclamation loop
	// performs phase two.
	p.deleted.Store(true)
	return nil
}

func (d *devImpl) DeleteAllPools() error {
	if err := d.guard(); err != nil {
		return err
	}
	d.state.pools.Range(func(id int, p *pool) bool {
		if id != device.DefaultPoolID {
			p.deleted.Store(true)
		}
		return true
	})
	return nil
}

func (d *devImpl) DeleteAll() error {
	if err := d.guard(); err != nil {
		return err
	}
	d.state.pools.Range(func(_ int, p *pool) bool {
		if p.deleted.Load() {
			return true
		}
		d.state.clearPool(p)
		return true
	})
	return nil
}

// clearPool drops every entry of a pool and fixes the store counters.
func (s *storeState) clearPool(p *pool) {
	for _, shard := range p.shards {
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if _, ok := shard.Data.LoadAndDelete(key); ok {
				s.numKeys.Add(-1)
				s.usedBytes.Add(-sectorRound(len(e.Value)))
			}
			return true
		})
	}
}

// sectorRound returns n rounded up to the next sector boundary, the unit
// the simulated device accounts space in.
func sectorRound(n int) int64 {
	return int64((n + device.SectorSize - 1) / device.SectorSize * device.SectorSize)
}

// --------------------------------------------------------------------------
// Reclamation
// --------------------------------------------------------------------------

// startReclaim starts the background reclamation loop.
// If the loop is already running, this function does nothing.
func (s *storeState) startReclaim() {
	if s.reclaimRunning.CompareAndSwap(false, true) {
		go s.reclaimLoop()
	}
}

// stopReclaim stops the reclamation loop. It cannot be restarted on a
// destroyed store.
func (s *storeState) stopReclaim() {
	if s.reclaimRunning.CompareAndSwap(true, false) {
		close(s.reclaimStop)
	}
}

// reclaimLoop is the background loop completing phase two of pool deletion
// and dropping expired entries.
func (s *storeState) reclaimLoop() {
	ticker := time.NewTicker(s.reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.reclaimStop:
			return
		case <-ticker.C:
			s.reclaimOnce(time.Now())
		}
	}
}

// reclaimOnce performs a single reclamation pass.
func (s *storeState) reclaimOnce(now time.Time) {
	s.pools.Range(func(id int, p *pool) bool {
		if p.deleted.Load() {
			s.clearPool(p)
			s.pools.Delete(id)
			s.tags.Compute(p.tag, func(old int, loaded bool) (int, bool) {
				// only drop the mapping if the tag still points here
				return old, !loaded || old == id
			})
			return true
		}

		// Drop expired entries so they stop occupying space.
		for _, shard := range p.shards {
			shard.Data.Range(func(key string, e internal.Entry) bool {
				if e.Expired(now) {
					if _, ok := shard.Data.LoadAndDelete(key); ok {
						s.numKeys.Add(-1)
						s.usedBytes.Add(-sectorRound(len(e.Value)))
					}
				}
				return true
			})
		}
		return true
	})
}
