package memdev

import (
	"fmt"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/device/engines/memdev/internal"
)

// --------------------------------------------------------------------------
// Cursors
// --------------------------------------------------------------------------

// cursor is a device-side iterator over one pool's keyspace. It snapshots
// the keys present at creation time: every key present at the start of the
// iteration is visited at least once if no concurrent mutation occurs, in
// engine-defined order. Entries that vanish mid-iteration are skipped.
//
// A cursor is a single logical position; it is not safe to share across
// goroutines.
type cursor struct {
	pool *pool
	keys []string
	idx  int  // -1 before the first Next
	live bool // positioned on a live entry
}

func (d *devImpl) BeginIterator(poolID int) (int, error) {
	if err := d.guard(); err != nil {
		return -1, err
	}
	p, err := d.getPool(poolID)
	if err != nil {
		return -1, d.fail(err)
	}

	// Cursor slots are bounded like on the real device.
	if d.state.iterCount.Add(1) > maxIterators {
		d.state.iterCount.Add(-1)
		return -1, d.fail(fmt.Errorf("%w: %d cursors in use", device.ErrIteratorLimit, maxIterators))
	}

	keys := make([]string, 0, 64)
	for _, shard := range p.shards {
		shard.Data.Range(func(key string, _ internal.Entry) bool {
			keys = append(keys, key)
			return true
		})
	}

	id := int(d.state.nextIterID.Add(1))
	d.state.iters.Store(id, &cursor{pool: p, keys: keys, idx: -1})
	return id, nil
}

func (d *devImpl) Next(iter int) (bool, error) {
	if err := d.guard(); err != nil {
		return false, err
	}
	c, ok := d.state.iters.Load(iter)
	if !ok {
		return false, d.fail(fmt.Errorf("%w: id %d", device.ErrIteratorInvalid, iter))
	}

	now := time.Now()
	for c.idx+1 < len(c.keys) {
		c.idx++
		shard := d.state.shardFor(c.pool, []byte(c.keys[c.idx]))
		if e, ok := shard.Data.Load(c.keys[c.idx]); ok && !e.Expired(now) {
			c.live = true
			return true, nil
		}
	}

	// Exhausted. Stay exhausted: repeated calls keep returning false.
	c.idx = len(c.keys)
	c.live = false
	return false, nil
}

func (d *devImpl) GetCurrent(iter int, keyBuf, valBuf []byte) (int, device.KeyInfo, error) {
	if err := d.guard(); err != nil {
		return 0, device.KeyInfo{}, err
	}
	c, ok := d.state.iters.Load(iter)
	if !ok || !c.live {
		return 0, device.KeyInfo{}, d.fail(fmt.Errorf("%w: cursor not positioned", device.ErrIteratorInvalid))
	}

	key := c.keys[c.idx]
	shard := d.state.shardFor(c.pool, []byte(key))
	e, found := shard.Data.Load(key)
	if !found || e.Expired(time.Now()) {
		return 0, device.KeyInfo{}, d.fail(device.ErrNotFound)
	}

	if len(keyBuf) < len(key) {
		return 0, device.KeyInfo{}, d.fail(fmt.Errorf("%w: key is %d bytes, buffer %d",
			device.ErrBufferTooSmall, len(key), len(keyBuf)))
	}
	if len(valBuf) < len(e.Value) {
		return 0, device.KeyInfo{}, d.fail(fmt.Errorf("%w: value is %d bytes, buffer %d",
			device.ErrBufferTooSmall, len(e.Value), len(valBuf)))
	}

	copy(keyBuf, key)
	copy(valBuf, e.Value)
	return len(key), keyInfo(c.pool.id, len(key), e), nil
}

func (d *devImpl) EndIterator(iter int) error {
	if err := d.guard(); err != nil {
		return err
	}
	if _, ok := d.state.iters.LoadAndDelete(iter); !ok {
		return d.fail(fmt.Errorf("%w: id %d", device.ErrIteratorInvalid, iter))
	}
	d.state.iterCount.Add(-1)
	return nil
}
