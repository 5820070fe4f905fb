package store

import (
	"sync"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/kv"
)

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// Pool is a named logical partition of a Store's keyspace. Pool handles
// are safe for concurrent reads; mutating operations (Put, Delete, the
// batches) are serialized per pool because the device's concurrent-write
// guarantees are unspecified.
type Pool struct {
	store *Store
	id    int
	tag   string
	mu    sync.Mutex // serializes mutating operations
}

// ID returns the device-assigned pool identifier.
func (p *Pool) ID() int {
	return p.id
}

// Tag returns the tag the pool was created under.
func (p *Pool) Tag() string {
	return p.tag
}

// validateWrite checks a key/value pair locally before it reaches the
// device, so malformed requests never touch device-side state.
func (p *Pool) validateWrite(key kv.Key, value *kv.Value) *Error {
	if value == nil {
		panic("store: operation requires a non-nil value")
	}
	if err := key.Validate(); err != nil {
		return NewError(RetCValidation, err.Error())
	}
	if err := value.Validate(); err != nil {
		return NewError(RetCValidation, err.Error())
	}
	return nil
}

// --------------------------------------------------------------------------
// Single-Item Operations
// --------------------------------------------------------------------------

// Put writes value.Bytes() under key. Write intent (expiry, generation
// count) comes from opts; value.Info is replaced wholesale with the
// authoritative post-write metadata. Returns the number of payload bytes
// written.
func (p *Pool) Put(key kv.Key, value *kv.Value, opts kv.WriteOptions) (int, error) {
	if err := p.store.guard(); err != nil {
		return 0, err
	}
	if err := p.validateWrite(key, value); err != nil {
		return 0, countErr("put", err)
	}

	countOp("put")
	p.mu.Lock()
	info, err := p.store.dev.Put(p.id, key.Data(), value.Bytes(), opts.Expiry, opts.GenCount)
	p.mu.Unlock()
	if err != nil {
		return 0, countErr("put", fromDevice(err))
	}

	value.Info = info
	return value.Len, nil
}

// Get reads the entry under key into value's aligned buffer and sets
// value.Len to the number of bytes read. value.Info is repopulated with
// the authoritative metadata; when the buffer is too small the metadata is
// still reported so the caller learns the required size, but the buffer
// contents must not be trusted.
func (p *Pool) Get(key kv.Key, value *kv.Value) (int, error) {
	if err := p.store.guard(); err != nil {
		return 0, err
	}
	if err := p.validateWrite(key, value); err != nil {
		return 0, countErr("get", err)
	}

	countOp("get")
	n, info, err := p.store.dev.Get(p.id, key.Data(), value.Data.Bytes())
	if err != nil {
		if info != (kv.KeyValueInfo{}) {
			value.Info = info
		}
		return 0, countErr("get", fromDevice(err))
	}

	value.Len = n
	value.Info = info
	return n, nil
}

// Exists reports whether an entry is present under key, without
// transferring payload bytes.
func (p *Pool) Exists(key kv.Key) (bool, error) {
	return p.ExistsInfo(key, nil)
}

// ExistsInfo is Exists with an optional metadata record: when info is
// non-nil and the entry is present, info is filled with its metadata. A
// scratch record is substituted for a nil info because the device rejects
// a missing record.
func (p *Pool) ExistsInfo(key kv.Key, info *kv.KeyValueInfo) (bool, error) {
	if err := p.store.guard(); err != nil {
		return false, err
	}
	if err := key.Validate(); err != nil {
		return false, countErr("exists", NewError(RetCValidation, err.Error()))
	}
	if info == nil {
		info = &kv.KeyValueInfo{}
	}

	countOp("exists")
	found, err := p.store.dev.Exists(p.id, key.Data(), info)
	if err != nil {
		return false, countErr("exists", fromDevice(err))
	}
	return found, nil
}

// Delete removes the entry under key.
func (p *Pool) Delete(key kv.Key) error {
	if err := p.store.guard(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return countErr("delete", NewError(RetCValidation, err.Error()))
	}

	countOp("delete")
	p.mu.Lock()
	err := p.store.dev.Delete(p.id, key.Data())
	p.mu.Unlock()
	if err != nil {
		return countErr("delete", fromDevice(err))
	}
	return nil
}

// ValueLen returns the stored value's length rounded up to the sector
// size and clamped to the device maximum. Metadata-only, no payload I/O.
func (p *Pool) ValueLen(key kv.Key) (int, error) {
	info, err := p.KeyInfo(key)
	if err != nil {
		return 0, err
	}

	rounded := (info.ValueLen + device.SectorSize - 1) / device.SectorSize * device.SectorSize
	if rounded > device.MaxValueSize {
		rounded = device.MaxValueSize
	}
	return rounded, nil
}

// KeyInfo fetches the full metadata record for key without payload
// transfer.
func (p *Pool) KeyInfo(key kv.Key) (kv.KeyValueInfo, error) {
	if err := p.store.guard(); err != nil {
		return kv.KeyValueInfo{}, err
	}
	if err := key.Validate(); err != nil {
		return kv.KeyValueInfo{}, countErr("key_info", NewError(RetCValidation, err.Error()))
	}

	countOp("key_info")
	info, err := p.store.dev.KeyInfo(p.id, key.Data())
	if err != nil {
		return kv.KeyValueInfo{}, countErr("key_info", fromDevice(err))
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Batch Operations
// --------------------------------------------------------------------------

// BatchOp pairs one key with its value and write intent for a batch call.
type BatchOp struct {
	Key   kv.Key
	Value *kv.Value
	Opts  kv.WriteOptions
}

// validateBatch checks the batch bounds before anything reaches the
// device: an invalid entry rejects the whole batch up front.
func (p *Pool) validateBatch(op string, n int) *Error {
	if n == 0 {
		return Errorf(RetCValidation, "%s: empty batch", op)
	}
	if n > device.MaxBatchSize {
		return Errorf(RetCValidation, "%s: %d entries exceed the batch maximum %d", op, n, device.MaxBatchSize)
	}
	return nil
}

// BatchPut writes all entries in one device call. The batch is validated
// entry by entry before submission; the device guarantees no atomicity
// across entries, so a failure means partial application is possible. On
// success every value's Info is repopulated element-by-element in input
// order.
func (p *Pool) BatchPut(ops []BatchOp) error {
	if err := p.store.guard(); err != nil {
		return err
	}
	if err := p.validateBatch("batch_put", len(ops)); err != nil {
		return countErr("batch_put", err)
	}

	entries := make([]device.BatchEntry, len(ops))
	for i := range ops {
		if err := p.validateWrite(ops[i].Key, ops[i].Value); err != nil {
			return countErr("batch_put", Errorf(err.Code, "batch_put entry %d: %s", i, err.Msg))
		}
		entries[i] = device.BatchEntry{
			Key:      ops[i].Key.Data(),
			Data:     ops[i].Value.Bytes(),
			Expiry:   ops[i].Opts.Expiry,
			GenCount: ops[i].Opts.GenCount,
		}
	}

	countOp("batch_put")
	p.mu.Lock()
	infos, err := p.store.dev.BatchPut(p.id, entries)
	p.mu.Unlock()
	if err != nil {
		return countErr("batch_put", fromDevice(err))
	}

	for i := range infos {
		ops[i].Value.Info = infos[i]
	}
	return nil
}

// BatchGet reads all keys in one device call into the entries' aligned
// buffers, repopulating each value's Len and Info in input order. Requires
// device batch-get support.
func (p *Pool) BatchGet(ops []BatchOp) error {
	if err := p.store.guard(); err != nil {
		return err
	}
	if !p.store.dev.SupportsFeature(device.FeatureBatchGet) {
		return countErr("batch_get", NewError(RetCUnsupportedOperation, "device does not support batch get"))
	}
	if err := p.validateBatch("batch_get", len(ops)); err != nil {
		return countErr("batch_get", err)
	}

	keys := make([][]byte, len(ops))
	bufs := make([][]byte, len(ops))
	for i := range ops {
		if err := p.validateWrite(ops[i].Key, ops[i].Value); err != nil {
			return countErr("batch_get", Errorf(err.Code, "batch_get entry %d: %s", i, err.Msg))
		}
		keys[i] = ops[i].Key.Data()
		bufs[i] = ops[i].Value.Data.Bytes()
	}

	countOp("batch_get")
	infos, err := p.store.dev.BatchGet(p.id, keys, bufs)
	if err != nil {
		return countErr("batch_get", fromDevice(err))
	}

	for i := range infos {
		ops[i].Value.Len = infos[i].ValueLen
		ops[i].Value.Info = infos[i]
	}
	return nil
}

// BatchDelete removes all keys in one device call. Requires device
// batch-delete support; no atomicity across entries.
func (p *Pool) BatchDelete(keys []kv.Key) error {
	if err := p.store.guard(); err != nil {
		return err
	}
	if !p.store.dev.SupportsFeature(device.FeatureBatchDelete) {
		return countErr("batch_delete", NewError(RetCUnsupportedOperation, "device does not support batch delete"))
	}
	if err := p.validateBatch("batch_delete", len(keys)); err != nil {
		return countErr("batch_delete", err)
	}

	raw := make([][]byte, len(keys))
	for i := range keys {
		if err := keys[i].Validate(); err != nil {
			return countErr("batch_delete", Errorf(RetCValidation, "batch_delete entry %d: %s", i, err.Error()))
		}
		raw[i] = keys[i].Data()
	}

	countOp("batch_delete")
	p.mu.Lock()
	err := p.store.dev.BatchDelete(p.id, raw)
	p.mu.Unlock()
	if err != nil {
		return countErr("batch_delete", fromDevice(err))
	}
	return nil
}
