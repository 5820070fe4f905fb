package memdev

import (
	"fmt"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/device/engines/memdev/internal"
)

// --------------------------------------------------------------------------
// Expiry Resolution
// --------------------------------------------------------------------------

// expiryFor resolves the effective expiry for a put under the store's
// expiry mode. It returns the configured expiry in seconds (as reported in
// the metadata record) and the absolute unix expiry timestamp.
func (s *storeState) expiryFor(requested uint32, now time.Time) (uint32, int64) {
	switch s.mode {
	case device.ExpiryArbitrary:
		if requested == 0 {
			return 0, 0
		}
		return requested, now.Unix() + int64(requested)
	case device.ExpiryGlobal:
		g := s.globalExpiry.Load()
		if g == 0 {
			return 0, 0
		}
		return g, now.Unix() + int64(g)
	default: // ExpiryDisabled
		return 0, 0
	}
}

// keyInfo builds the authoritative metadata record for an entry.
func keyInfo(poolID int, keyLen int, e internal.Entry) device.KeyInfo {
	return device.KeyInfo{
		PoolID:   poolID,
		KeyLen:   keyLen,
		ValueLen: len(e.Value),
		Expiry:   e.ExpirySec,
		GenCount: e.GenCount,
	}
}

// --------------------------------------------------------------------------
// Single-Item Operations
// --------------------------------------------------------------------------

func (d *devImpl) Put(poolID int, key, data []byte, expiry, genCount uint32) (device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return device.KeyInfo{}, err
	}
	p, err := d.getPool(poolID)
	if err != nil {
		return device.KeyInfo{}, d.fail(err)
	}

	now := time.Now()
	expirySec, expireAt := d.state.expiryFor(expiry, now)

	// Copy the payload: the engine owns its entries, the caller keeps
	// owning its buffer.
	valueCopy := make([]byte, len(data))
	copy(valueCopy, data)

	entry := internal.Entry{
		Value:     valueCopy,
		ExpirySec: expirySec,
		ExpireAt:  expireAt,
		GenCount:  genCount,
	}

	var full bool
	shard := d.state.shardFor(p, key)
	shard.Data.Compute(string(key), func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		// An expired entry still occupies its slot and the store
		// counters until reclamation drops it, so overwriting one is a
		// replacement, not a fresh insert.
		delta := sectorRound(len(valueCopy))
		if loaded {
			delta -= sectorRound(len(old.Value))
		}
		if d.state.usedBytes.Load()+delta > int64(d.state.capacity) {
			full = true
			if loaded {
				return old, false
			}
			return old, true // don't create the entry
		}

		d.state.usedBytes.Add(delta)
		if !loaded {
			d.state.numKeys.Add(1)
		}
		return entry, false
	})
	if full {
		return device.KeyInfo{}, d.fail(fmt.Errorf("%w: device full", device.ErrIO))
	}

	return keyInfo(poolID, len(key), entry), nil
}

func (d *devImpl) Get(poolID int, key []byte, buf []byte) (int, device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return 0, device.KeyInfo{}, err
	}
	p, err := d.getPool(poolID)
	if err != nil {
		return 0, device.KeyInfo{}, d.fail(err)
	}

	shard := d.state.shardFor(p, key)
	e, ok := shard.Data.Load(string(key))
	if !ok || e.Expired(time.Now()) {
		return 0, device.KeyInfo{}, d.fail(device.ErrNotFound)
	}
	if len(buf) < len(e.Value) {
		// Report the metadata even on failure so the caller learns the
		// required size.
		return 0, keyInfo(poolID, len(key), e),
			d.fail(fmt.Errorf("%w: value is %d bytes, buffer %d", device.ErrBufferTooSmall, len(e.Value), len(buf)))
	}

	n := copy(buf, e.Value)
	return n, keyInfo(poolID, len(key), e), nil
}

func (d *devImpl) Exists(poolID int, key []byte, info *device.KeyInfo) (bool, error) {
	if err := d.guard(); err != nil {
		return false, err
	}
	p, err := d.getPool(poolID)
	if err != nil {
		return false, d.fail(err)
	}
	if info == nil {
		// The reference device segfaults on a NULL info pointer; the
		// client layer substitutes a scratch record, so a nil here is a
		// contract violation.
		panic("memdev: Exists requires a non-nil info record")
	}

	shard := d.state.shardFor(p, key)
	e, ok := shard.Data.Load(string(key))
	if !ok || e.Expired(time.Now()) {
		return false, nil
	}

	*info = keyInfo(poolID, len(key), e)
	return true, nil
}

func (d *devImpl) Delete(poolID int, key []byte) error {
	if err := d.guard(); err != nil {
		return err
	}
	p, err := d.getPool(poolID)
	if err != nil {
		return d.fail(err)
	}

	shard := d.state.shardFor(p, key)
	e, ok := shard.Data.LoadAndDelete(string(key))
	if !ok {
		return d.fail(device.ErrNotFound)
	}

	d.state.numKeys.Add(-1)
	d.state.usedBytes.Add(-sectorRound(len(e.Value)))

	// The slot held an expired entry reclamation had not dropped yet: it
	// was already absent to the caller, the delete just swept it early.
	if e.Expired(time.Now()) {
		return d.fail(device.ErrNotFound)
	}
	return nil
}

func (d *devImpl) KeyInfo(poolID int, key []byte) (device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return device.KeyInfo{}, err
	}
	p, err := d.getPool(poolID)
	if err != nil {
		return device.KeyInfo{}, d.fail(err)
	}

	shard := d.state.shardFor(p, key)
	e, ok := shard.Data.Load(string(key))
	if !ok || e.Expired(time.Now()) {
		return device.KeyInfo{}, d.fail(device.ErrNotFound)
	}
	return keyInfo(poolID, len(key), e), nil
}

// --------------------------------------------------------------------------
// Batch Operations
// --------------------------------------------------------------------------

// Batches execute entry by entry with no transaction boundary: an error
// leaves the already applied prefix in place, matching the device contract
// that a batch failure does not imply nothing was written.

func (d *devImpl) BatchPut(poolID int, entries []device.BatchEntry) ([]device.KeyInfo, error) {
	infos := make([]device.KeyInfo, 0, len(entries))
	for i, e := range entries {
		info, err := d.Put(poolID, e.Key, e.Data, e.Expiry, e.GenCount)
		if err != nil {
			return nil, d.fail(fmt.Errorf("%w: entry %d: %v", device.ErrBatchFailed, i, err))
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *devImpl) BatchGet(poolID int, keys [][]byte, bufs [][]byte) ([]device.KeyInfo, error) {
	infos := make([]device.KeyInfo, 0, len(keys))
	for i, key := range keys {
		_, info, err := d.Get(poolID, key, bufs[i])
		if err != nil {
			return nil, d.fail(fmt.Errorf("%w: entry %d: %v", device.ErrBatchFailed, i, err))
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *devImpl) BatchDelete(poolID int, keys [][]byte) error {
	for i, key := range keys {
		if err := d.Delete(poolID, key); err != nil {
			return d.fail(fmt.Errorf("%w: entry %d: %v", device.ErrBatchFailed, i, err))
		}
	}
	return nil
}
