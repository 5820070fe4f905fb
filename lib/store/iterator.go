package store

import (
	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/kv"
)

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// Iterator is a cursor over a pool's keyspace. Iteration order is
// device-defined and must be treated as unordered. An Iterator owns its
// key and value buffers and reuses them across entries, so the records
// returned by Current are only valid until the next call to Next or Close.
//
// Iterators are a bounded device resource and are not safe to share across
// goroutines. Every iterator must be released with Close; Pool.ForEach
// wraps the full protocol and guarantees the release on all exit paths.
type Iterator struct {
	pool  *Pool
	id    int
	open  bool
	valid bool
	err   *Error
	key   kv.Key
	value *kv.Value
}

// Iterate opens a cursor over the pool. The caller must Close the
// returned iterator, also on error paths.
func (p *Pool) Iterate() (*Iterator, error) {
	if err := p.store.guard(); err != nil {
		return nil, err
	}

	value, err := kv.NewValue(device.MaxValueSize)
	if err != nil {
		return nil, countErr("iterate", NewError(RetCResourceExhausted, err.Error()))
	}

	countOp("iterate")
	id, derr := p.store.dev.BeginIterator(p.id)
	if derr != nil {
		value.Release()
		return nil, countErr("iterate", fromDevice(derr))
	}

	return &Iterator{
		pool:  p,
		id:    id,
		open:  true,
		key:   kv.NewKey(make([]byte, device.MaxKeySize)),
		value: value,
	}, nil
}

// Next advances the cursor and loads the entry at the new position. It
// returns false when the pool is exhausted or an error occurred; the two
// are told apart through Err. Calling Next after exhaustion keeps
// returning false.
func (it *Iterator) Next() bool {
	it.valid = false
	if !it.open || it.err != nil {
		return false
	}

	dev := it.pool.store.dev
	ok, err := dev.Next(it.id)
	if err != nil {
		it.err = fromDevice(err)
		return false
	}
	if !ok {
		return false
	}

	keyLen, info, err := dev.GetCurrent(it.id, it.key.Bytes, it.value.Data.Bytes())
	if err != nil {
		it.err = fromDevice(err)
		return false
	}

	it.key.Length = keyLen
	it.value.Len = info.ValueLen
	it.value.Info = info
	it.valid = true
	return true
}

// Current returns the key and value at the cursor position. Calling
// Current before a successful Next, after exhaustion or after Close is a
// caller error.
func (it *Iterator) Current() (kv.Key, *kv.Value) {
	if !it.valid {
		panic("store: Iterator.Current without a positioned cursor")
	}
	return it.key, it.value
}

// Err returns the error that terminated iteration, or nil after a clean
// exhaustion.
func (it *Iterator) Err() error {
	if it.err == nil {
		return nil
	}
	return it.err
}

// Close releases the device-side cursor slot and the iterator's value
// buffer. Close is idempotent.
func (it *Iterator) Close() {
	if !it.open {
		return
	}
	it.open = false
	it.valid = false
	_ = it.pool.store.dev.EndIterator(it.id)
	it.value.Release()
}

// ForEach iterates the whole pool, invoking fn for every entry. The
// cursor is released on every exit path, including an fn error or panic.
// The records passed to fn are reused between entries and must be copied
// if retained.
func (p *Pool) ForEach(fn func(key kv.Key, value *kv.Value) error) error {
	it, err := p.Iterate()
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		key, value := it.Current()
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return it.Err()
}
