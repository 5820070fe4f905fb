package boltdev

import (
	"fmt"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// A boltCursor holds a live read transaction for the duration of the
// iteration. The transaction pins the pages the cursor walks, so an open
// cursor sees a consistent snapshot but also blocks page reclamation; the
// iterator budget keeps the number of pinned snapshots small.
type boltCursor struct {
	poolID  int
	tx      *bbolt.Tx
	c       *bbolt.Cursor
	started bool
	live    bool
	key     []byte
	val     []byte
}

func (d *devImpl) BeginIterator(poolID int) (int, error) {
	if err := d.guard(); err != nil {
		return 0, err
	}

	tx, err := d.db.Begin(false)
	if err != nil {
		return 0, d.fail(fmt.Errorf("%w: begin iterator: %v", device.ErrIO, err))
	}
	b := tx.Bucket(poolBucket(poolID))
	if b == nil {
		_ = tx.Rollback()
		return 0, d.fail(fmt.Errorf("%w: id %d", device.ErrPoolNotFound, poolID))
	}

	cur := &boltCursor{poolID: poolID, tx: tx, c: b.Cursor()}

	d.mu.Lock()
	if len(d.iters) >= maxIterators {
		d.mu.Unlock()
		_ = tx.Rollback()
		return 0, d.fail(fmt.Errorf("%w: %d iterators open", device.ErrIteratorLimit, maxIterators))
	}
	d.nextIterID++
	id := d.nextIterID
	d.iters[id] = cur
	d.mu.Unlock()

	return id, nil
}

func (d *devImpl) cursor(id int) (*boltCursor, error) {
	d.mu.Lock()
	cur, ok := d.iters[id]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %d", device.ErrIteratorInvalid, id)
	}
	return cur, nil
}

func (d *devImpl) Next(iterID int) (bool, error) {
	if err := d.guard(); err != nil {
		return false, err
	}
	cur, err := d.cursor(iterID)
	if err != nil {
		return false, d.fail(err)
	}

	now := time.Now()
	for {
		var k, v []byte
		if !cur.started {
			k, v = cur.c.First()
			cur.started = true
		} else {
			k, v = cur.c.Next()
		}
		if k == nil {
			// Exhausted. Further calls keep reporting exhaustion.
			cur.live = false
			cur.key, cur.val = nil, nil
			return false, nil
		}
		_, _, expireAt, _, err := decodeEntry(v)
		if err != nil {
			cur.live = false
			return false, d.fail(err)
		}
		if expired(expireAt, now) {
			continue
		}
		cur.key, cur.val = k, v
		cur.live = true
		return true, nil
	}
}

func (d *devImpl) GetCurrent(iterID int, keyBuf, valBuf []byte) (int, device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return 0, device.KeyInfo{}, err
	}
	cur, err := d.cursor(iterID)
	if err != nil {
		return 0, device.KeyInfo{}, d.fail(err)
	}
	if !cur.live {
		return 0, device.KeyInfo{}, d.fail(fmt.Errorf("%w: no current entry", device.ErrIteratorInvalid))
	}

	payload, expirySec, _, genCount, err := decodeEntry(cur.val)
	if err != nil {
		return 0, device.KeyInfo{}, d.fail(err)
	}
	if len(keyBuf) < len(cur.key) {
		return 0, device.KeyInfo{}, d.fail(fmt.Errorf("%w: key is %d bytes, buffer %d",
			device.ErrBufferTooSmall, len(cur.key), len(keyBuf)))
	}
	if len(valBuf) < len(payload) {
		return 0, device.KeyInfo{}, d.fail(fmt.Errorf("%w: value is %d bytes, buffer %d",
			device.ErrBufferTooSmall, len(payload), len(valBuf)))
	}

	copy(keyBuf, cur.key)
	copy(valBuf, payload)
	return len(cur.key), keyInfo(cur.poolID, len(cur.key), len(payload), expirySec, genCount), nil
}

func (d *devImpl) EndIterator(iterID int) error {
	if err := d.guard(); err != nil {
		return err
	}

	d.mu.Lock()
	cur, ok := d.iters[iterID]
	if ok {
		delete(d.iters, iterID)
	}
	d.mu.Unlock()

	if !ok {
		return d.fail(fmt.Errorf("%w: id %d", device.ErrIteratorInvalid, iterID))
	}
	_ = cur.tx.Rollback()
	return nil
}
