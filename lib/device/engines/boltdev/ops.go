package boltdev

import (
	"fmt"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Expiry Resolution
// --------------------------------------------------------------------------

// expiryFor resolves the effective expiry for a put under the store's
// expiry mode. It returns the configured expiry in seconds and the absolute
// unix expiry timestamp.
func (d *devImpl) expiryFor(requested uint32, now time.Time) (uint32, int64) {
	switch d.mode {
	case device.ExpiryArbitrary:
		if requested == 0 {
			return 0, 0
		}
		return requested, now.Unix() + int64(requested)
	case device.ExpiryGlobal:
		d.mu.Lock()
		g := d.globalExpiry
		d.mu.Unlock()
		if g == 0 {
			return 0, 0
		}
		return g, now.Unix() + int64(g)
	default: // ExpiryDisabled
		return 0, 0
	}
}

func keyInfo(poolID, keyLen, valueLen int, expirySec, genCount uint32) device.KeyInfo {
	return device.KeyInfo{
		PoolID:   poolID,
		KeyLen:   keyLen,
		ValueLen: valueLen,
		Expiry:   expirySec,
		GenCount: genCount,
	}
}

// dataBucket resolves the data bucket for a pool inside a transaction.
func dataBucket(tx *bbolt.Tx, poolID int) (*bbolt.Bucket, error) {
	b := tx.Bucket(poolBucket(poolID))
	if b == nil {
		return nil, fmt.Errorf("%w: id %d", device.ErrPoolNotFound, poolID)
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Single-Item Operations
// --------------------------------------------------------------------------

func (d *devImpl) Put(poolID int, key, data []byte, expiry, genCount uint32) (device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return device.KeyInfo{}, err
	}

	now := time.Now()
	expirySec, expireAt := d.expiryFor(expiry, now)

	err := d.db.Update(func(tx *bbolt.Tx) error {
		b, err := dataBucket(tx, poolID)
		if err != nil {
			return err
		}
		if err := b.Put(key, encodeEntry(data, expirySec, expireAt, genCount)); err != nil {
			return fmt.Errorf("%w: put: %v", device.ErrIO, err)
		}
		return nil
	})
	if err != nil {
		return device.KeyInfo{}, d.fail(err)
	}
	return keyInfo(poolID, len(key), len(data), expirySec, genCount), nil
}

func (d *devImpl) Get(poolID int, key []byte, buf []byte) (int, device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return 0, device.KeyInfo{}, err
	}

	var n int
	var info device.KeyInfo
	err := d.db.View(func(tx *bbolt.Tx) error {
		b, err := dataBucket(tx, poolID)
		if err != nil {
			return err
		}
		raw := b.Get(key)
		if raw == nil {
			return device.ErrNotFound
		}
		payload, expirySec, expireAt, genCount, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		if expired(expireAt, time.Now()) {
			return device.ErrNotFound
		}
		info = keyInfo(poolID, len(key), len(payload), expirySec, genCount)
		if len(buf) < len(payload) {
			// Report the metadata even on failure so the caller learns
			// the required size.
			return fmt.Errorf("%w: value is %d bytes, buffer %d",
				device.ErrBufferTooSmall, len(payload), len(buf))
		}
		n = copy(buf, payload)
		return nil
	})
	if err != nil {
		return 0, info, d.fail(err)
	}
	return n, info, nil
}

func (d *devImpl) Exists(poolID int, key []byte, info *device.KeyInfo) (bool, error) {
	if err := d.guard(); err != nil {
		return false, err
	}
	if info == nil {
		// The reference device segfaults on a NULL info pointer; the
		// client layer substitutes a scratch record, so a nil here is a
		// contract violation.
		panic("boltdev: Exists requires a non-nil info record")
	}

	var found bool
	err := d.db.View(func(tx *bbolt.Tx) error {
		b, err := dataBucket(tx, poolID)
		if err != nil {
			return err
		}
		raw := b.Get(key)
		if raw == nil {
			return nil
		}
		payload, expirySec, expireAt, genCount, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		if expired(expireAt, time.Now()) {
			return nil
		}
		*info = keyInfo(poolID, len(key), len(payload), expirySec, genCount)
		found = true
		return nil
	})
	if err != nil {
		return false, d.fail(err)
	}
	return found, nil
}

func (d *devImpl) Delete(poolID int, key []byte) error {
	if err := d.guard(); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		b, err := dataBucket(tx, poolID)
		if err != nil {
			return err
		}
		raw := b.Get(key)
		if raw == nil {
			return device.ErrNotFound
		}
		_, _, expireAt, _, derr := decodeEntry(raw)
		if derr != nil {
			return derr
		}
		if expired(expireAt, time.Now()) {
			// Expired entries are absent to every operation even while
			// their bytes linger in the file.
			return device.ErrNotFound
		}
		if err := b.Delete(key); err != nil {
			return fmt.Errorf("%w: delete: %v", device.ErrIO, err)
		}
		return nil
	})
	if err != nil {
		return d.fail(err)
	}
	return nil
}

func (d *devImpl) KeyInfo(poolID int, key []byte) (device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return device.KeyInfo{}, err
	}

	var info device.KeyInfo
	err := d.db.View(func(tx *bbolt.Tx) error {
		b, err := dataBucket(tx, poolID)
		if err != nil {
			return err
		}
		raw := b.Get(key)
		if raw == nil {
			return device.ErrNotFound
		}
		payload, expirySec, expireAt, genCount, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		if expired(expireAt, time.Now()) {
			return device.ErrNotFound
		}
		info = keyInfo(poolID, len(key), len(payload), expirySec, genCount)
		return nil
	})
	if err != nil {
		return device.KeyInfo{}, d.fail(err)
	}
	return info, nil
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
