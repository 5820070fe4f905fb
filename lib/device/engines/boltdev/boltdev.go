package boltdev

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Constants and Bucket Layout
// --------------------------------------------------------------------------

const (
	maxIterators = 32 // bbolt read transactions pin pages; keep the bound tight

	// capacityBytes is the nominal device capacity reported through
	// StoreInfo. bbolt files grow on demand, so free space is capacity
	// minus the current file size.
	capacityBytes = 1 << 30
)

var (
	bucketMeta  = []byte("meta")
	bucketPools = []byte("pools")
	bucketTags  = []byte("tags")

	metaVersion    = []byte("version")
	metaExpiryMode = []byte("expiry_mode")
	metaExpiryTime = []byte("expiry_time")
	metaNextPoolID = []byte("next_pool_id")
)

// poolBucket returns the name of the data bucket for a pool id.
func poolBucket(id int) []byte {
	name := make([]byte, 5)
	name[0] = 'p'
	binary.BigEndian.PutUint32(name[1:], uint32(id))
	return name
}

// --------------------------------------------------------------------------
// Entry Encoding
// --------------------------------------------------------------------------

// Entries are stored as a fixed binary header followed by the payload:
//
//	expiry_sec uint32 | expire_at int64 | gen_count uint32 | payload
const entryHeaderSize = 4 + 8 + 4

func encodeEntry(data []byte, expirySec uint32, expireAt int64, genCount uint32) []byte {
	buf := make([]byte, entryHeaderSize+len(data))
	binary.BigEndian.PutUint32(buf[0:4], expirySec)
	binary.BigEndian.PutUint64(buf[4:12], uint64(expireAt))
	binary.BigEndian.PutUint32(buf[12:16], genCount)
	copy(buf[entryHeaderSize:], data)
	return buf
}

func decodeEntry(raw []byte) (payload []byte, expirySec uint32, expireAt int64, genCount uint32, err error) {
	if len(raw) < entryHeaderSize {
		return nil, 0, 0, 0, fmt.Errorf("%w: truncated entry header", device.ErrIO)
	}
	expirySec = binary.BigEndian.Uint32(raw[0:4])
	expireAt = int64(binary.BigEndian.Uint64(raw[4:12]))
	genCount = binary.BigEndian.Uint32(raw[12:16])
	return raw[entryHeaderSize:], expirySec, expireAt, genCount, nil
}

func expired(expireAt int64, now time.Time) bool {
	return expireAt != 0 && now.Unix() >= expireAt
}

// --------------------------------------------------------------------------
// Open
// --------------------------------------------------------------------------

// Open opens (or creates) the bbolt-backed device at path. It implements
// device.Factory. The store version and expiry configuration are written to
// the meta bucket at first open and validated on every re-open.
func Open(path string, opts device.Options) (device.Device, error) {
	if opts.ExpiryMode == device.ExpiryGlobal && opts.ExpiryTime == 0 {
		return nil, fmt.Errorf("%w: global mode requires a positive expiry time", device.ErrExpiryConfig)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", device.ErrIO, path, err)
	}

	d := &devImpl{
		path:    path,
		db:      db,
		mode:    opts.ExpiryMode,
		version: opts.Version,
		iters:   make(map[int]*boltCursor),
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("%w: create meta bucket: %v", device.ErrIO, err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPools); err != nil {
			return fmt.Errorf("%w: create pools bucket: %v", device.ErrIO, err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketTags); err != nil {
			return fmt.Errorf("%w: create tags bucket: %v", device.ErrIO, err)
		}

		if recorded := meta.Get(metaVersion); recorded != nil {
			// Re-open: validate against the persisted store header.
			v := binary.BigEndian.Uint32(recorded)
			if v != opts.Version {
				return fmt.Errorf("%w: store has version %d, caller requested %d",
					device.ErrVersionMismatch, v, opts.Version)
			}
			m := device.ExpiryMode(binary.BigEndian.Uint32(meta.Get(metaExpiryMode)))
			if m != opts.ExpiryMode {
				return fmt.Errorf("%w: store was created with expiry mode %s",
					device.ErrExpiryConfig, m)
			}
			d.globalExpiry = binary.BigEndian.Uint32(meta.Get(metaExpiryTime))
			return nil
		}

		// First open: record the configuration and create the default
		// pool.
		if err := putUint32(meta, metaVersion, opts.Version); err != nil {
			return err
		}
		if err := putUint32(meta, metaExpiryMode, uint32(opts.ExpiryMode)); err != nil {
			return err
		}
		if err := putUint32(meta, metaExpiryTime, 0); err != nil {
			return err
		}
		if err := putUint64(meta, metaNextPoolID, 0); err != nil {
			return err
		}
		return createPool(tx, device.DefaultPoolID, "default")
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

func putUint32(b *bbolt.Bucket, key []byte, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	if err := b.Put(key, buf); err != nil {
		return fmt.Errorf("%w: put meta: %v", device.ErrIO, err)
	}
	return nil
}

func putUint64(b *bbolt.Bucket, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	if err := b.Put(key, buf); err != nil {
		return fmt.Errorf("%w: put meta: %v", device.ErrIO, err)
	}
	return nil
}

// createPool registers a pool and its data bucket inside an open write
// transaction.
func createPool(tx *bbolt.Tx, id int, tag string) error {
	idKey := make([]byte, 4)
	binary.BigEndian.PutUint32(idKey, uint32(id))

	if err := tx.Bucket(bucketPools).Put(idKey, []byte(tag)); err != nil {
		return fmt.Errorf("%w: register pool: %v", device.ErrIO, err)
	}
	if err := tx.Bucket(bucketTags).Put([]byte(tag), idKey); err != nil {
		return fmt.Errorf("%w: register pool tag: %v", device.ErrIO, err)
	}
	if _, err := tx.CreateBucketIfNotExists(poolBucket(id)); err != nil {
		return fmt.Errorf("%w: create pool bucket: %v", device.ErrIO, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Device Handle
// --------------------------------------------------------------------------

type devImpl struct {
	path    string
	db      *bbolt.DB
	version uint32
	mode    device.ExpiryMode

	mu           sync.Mutex // guards closed, globalExpiry, iters
	closed       bool
	globalExpiry uint32
	nextIterID   int
	iters        map[int]*boltCursor

	// lastErr is the legacy errno slot, deliberately unsynchronized.
	lastErr int
}

func (d *devImpl) guard() error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return d.fail(device.ErrClosed)
	}
	return nil
}

func (d *devImpl) fail(err error) error {
	if err != nil {
		d.lastErr = device.Errno(err)
	}
	return err
}

func (d *devImpl) LastError() int {
	return d.lastErr
}

func (d *devImpl) SupportsFeature(f device.Feature) bool {
	supported := device.FeatureBatchGet |
		device.FeatureBatchDelete |
		device.FeatureGlobalExpiry |
		device.FeaturePersistence
	return supported&f == f
}

func (d *devImpl) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.releaseCursorsLocked()
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", device.ErrIO, err)
	}
	return nil
}

func (d *devImpl) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.releaseCursorsLocked()
		_ = d.db.Close()
	}
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: destroy %s: %v", device.ErrIO, d.path, err)
	}
	return nil
}

// releaseCursorsLocked rolls back every open cursor transaction. Called
// with d.mu held.
func (d *devImpl) releaseCursorsLocked() {
	for id, c := range d.iters {
		_ = c.tx.Rollback()
		delete(d.iters, id)
	}
}

func (d *devImpl) Info() (device.StoreInfo, error) {
	if err := d.guard(); err != nil {
		return device.StoreInfo{}, err
	}

	info := device.StoreInfo{
		Version:    d.version,
		MaxPools:   device.MaxPools,
		ExpiryMode: d.mode,
		Impl:       device.ImplBolt,
	}

	now := time.Now()
	err := d.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPools).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			id := int(binary.BigEndian.Uint32(k))
			if id != device.DefaultPoolID {
				info.NumPools++
			}
			b := tx.Bucket(poolBucket(id))
			if b == nil {
				continue
			}
			// Expired entries linger in the file until overwritten or
			// deleted; count only what reads can see.
			err := b.ForEach(func(_, v []byte) error {
				_, _, expireAt, _, err := decodeEntry(v)
				if err != nil {
					return err
				}
				if !expired(expireAt, now) {
					info.NumKeys++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return device.StoreInfo{}, d.fail(err)
	}

	if st, err := os.Stat(d.path); err == nil && uint64(st.Size()) < capacityBytes {
		info.FreeSpace = capacityBytes - uint64(st.Size())
	}
	return info, nil
}

func (d *devImpl) SetGlobalExpiry(seconds uint32) error {
	if err := d.guard(); err != nil {
		return err
	}
	if d.mode != device.ExpiryGlobal {
		return d.fail(fmt.Errorf("%w: store is in %s mode", device.ErrExpiryConfig, d.mode))
	}
	if seconds == 0 {
		return d.fail(fmt.Errorf("%w: global expiry must be positive", device.ErrExpiryConfig))
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		return putUint32(tx.Bucket(bucketMeta), metaExpiryTime, seconds)
	})
	if err != nil {
		return d.fail(err)
	}

	d.mu.Lock()
	d.globalExpiry = seconds
	d.mu.Unlock()
	return nil
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

	var info device.PoolInfo
	err := d.db.Update(func(tx *bbolt.Tx) error {
		if idKey := tx.Bucket(bucketTags).Get([]byte(tag)); idKey != nil {
			info = device.PoolInfo{ID: int(binary.BigEndian.Uint32(idKey)), Tag: tag}
			return nil
		}

		pools := tx.Bucket(bucketPools)
		if pools.Stats().KeyN >= device.MaxPools {
			return fmt.Errorf("%w: %d pools", device.ErrPoolLimit, device.MaxPools)
		}

		meta := tx.Bucket(bucketMeta)
		next := binary.BigEndian.Uint64(meta.Get(metaNextPoolID)) + 1
		if err := putUint64(meta, metaNextPoolID, next); err != nil {
			return err
		}

		id := int(next)
		if err := createPool(tx, id, tag); err != nil {
			return err
		}
		info = device.PoolInfo{ID: id, Tag: tag}
		return nil
	})
	if err != nil {
		return device.PoolInfo{}, d.fail(err)
	}
	return info, nil
}

func (d *devImpl) Pools() ([]device.PoolInfo, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}

	infos := make([]device.PoolInfo, 0, 8)
	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(k, tag []byte) error {
			infos = append(infos, device.PoolInfo{
				ID:  int(binary.BigEndian.Uint32(k)),
				Tag: string(tag),
			})
			return nil
		})
	})
	if err != nil {
		return nil, d.fail(fmt.Errorf("%w: list pools: %v", device.ErrIO, err))
	}
	return infos, nil
}

func (d *devImpl) DeletePool(id int) error {
	if err := d.guard(); err != nil {
		return err
	}
	if id == device.DefaultPoolID {
		return d.fail(fmt.Errorf("%w: default pool", device.ErrProtectedPool))
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		return deletePoolTx(tx, id)
	})
	if err != nil {
		return d.fail(err)
	}
	return nil
}

func deletePoolTx(tx *bbolt.Tx, id int) error {
	idKey := make([]byte, 4)
	binary.BigEndian.PutUint32(idKey, uint32(id))

	pools := tx.Bucket(bucketPools)
	tag := pools.Get(idKey)
	if tag == nil {
		return fmt.Errorf("%w: id %d", device.ErrPoolNotFound, id)
	}

	if err := pools.Delete(idKey); err != nil {
		return fmt.Errorf("%w: unregister pool: %v", device.ErrIO, err)
	}
	if err := tx.Bucket(bucketTags).Delete(tag); err != nil {
		return fmt.Errorf("%w: unregister pool tag: %v", device.ErrIO, err)
	}
	if err := tx.DeleteBucket(poolBucket(id)); err != nil && err != bbolt.ErrBucketNotFound {
		return fmt.Errorf("%w: drop pool bucket: %v", device.ErrIO, err)
	}
	return nil
}

func (d *devImpl) DeleteAllPools() error {
	if err := d.guard(); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		ids := make([]int, 0, 8)
		err := tx.Bucket(bucketPools).ForEach(func(k, _ []byte) error {
			if id := int(binary.BigEndian.Uint32(k)); id != device.DefaultPoolID {
				ids = append(ids, id)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: list pools: %v", device.ErrIO, err)
		}
		for _, id := range ids {
			if err := deletePoolTx(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return d.fail(err)
	}
	return nil
}

func (d *devImpl) DeleteAll() error {
	if err := d.guard(); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(k, _ []byte) error {
			id := int(binary.BigEndian.Uint32(k))
			if err := tx.DeleteBucket(poolBucket(id)); err != nil && err != bbolt.ErrBucketNotFound {
				return fmt.Errorf("%w: clear pool %d: %v", device.ErrIO, id, err)
			}
			if _, err := tx.CreateBucket(poolBucket(id)); err != nil {
				return fmt.Errorf("%w: recreate pool %d: %v", device.ErrIO, id, err)
			}
			return nil
		})
	})
	if err != nil {
		return d.fail(err)
	}
	return nil
}
