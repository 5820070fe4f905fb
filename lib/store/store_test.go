package store

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/device/engines/memdev"
	"github.com/flashkv/fKV/lib/kv"
)

func openTestStore(t *testing.T, opts device.Options) *Store {
	t.Helper()
	s, err := Open(memdev.Open, filepath.Join(t.TempDir(), "kv0"), opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func mustValue(t *testing.T, size int) *kv.Value {
	t.Helper()
	v, err := kv.NewValue(size)
	if err != nil {
		t.Fatalf("NewValue(%d) failed: %v", size, err)
	}
	t.Cleanup(v.Release)
	return v
}

// The reference scenario: store with version 1 and expiry disabled, pool
// tagged "sessions", a 37-byte payload under "user:42" written from and
// read into 4096-byte aligned buffers.
func TestPutGetScenario(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1, ExpiryMode: device.ExpiryDisabled})

	pool, err := s.GetOrCreatePool("sessions")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	payload := []byte("a thirty-seven byte test payload here")
	key := kv.KeyFromString("user:42")

	out := mustValue(t, 4096)
	if err := out.SetBytes(payload); err != nil {
		t.Fatalf("SetBytes failed: %v", err)
	}

	written, err := pool.Put(key, out, kv.WriteOptions{})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if written != 37 {
		t.Errorf("Expected 37 bytes written, got %d", written)
	}
	if out.Info.ValueLen != 37 || out.Info.KeyLen != key.Length {
		t.Errorf("Put must repopulate the metadata record, got %+v", out.Info)
	}

	in := mustValue(t, 4096)
	read, err := pool.Get(key, in)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if read != 37 {
		t.Errorf("Expected 37 bytes read, got %d", read)
	}
	if !bytes.Equal(in.Bytes(), payload) {
		t.Errorf("Payload mismatch: %q", in.Bytes())
	}
	if in.Info.ValueLen != 37 {
		t.Errorf("Expected info.ValueLen 37, got %d", in.Info.ValueLen)
	}
}

func TestExistsAfterPutAndDelete(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()

	key := kv.KeyFromString("exists-key")
	v := mustValue(t, 512)
	if err := v.SetBytes([]byte("payload")); err != nil {
		t.Fatalf("SetBytes failed: %v", err)
	}

	found, err := pool.Exists(key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if found {
		t.Errorf("Exists must be false before Put")
	}

	if _, err := pool.Put(key, v, kv.WriteOptions{GenCount: 5}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var info kv.KeyValueInfo
	found, err = pool.ExistsInfo(key, &info)
	if err != nil {
		t.Fatalf("ExistsInfo failed: %v", err)
	}
	if !found {
		t.Errorf("Exists must be true immediately after Put")
	}
	if info.ValueLen != 7 || info.GenCount != 5 {
		t.Errorf("ExistsInfo metadata mismatch: %+v", info)
	}

	if err := pool.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	found, err = pool.Exists(key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if found {
		t.Errorf("Exists must be false immediately after Delete")
	}

	if err := pool.Delete(key); !IsNotFound(err) {
		t.Errorf("Expected RetCNotFound deleting an absent key, got %v", err)
	}
}

func TestValueLenRounding(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()

	v := mustValue(t, 4096)
	if err := v.SetBytes(make([]byte, 37)); err != nil {
		t.Fatalf("SetBytes failed: %v", err)
	}
	key := kv.KeyFromString("rounding-key")
	if _, err := pool.Put(key, v, kv.WriteOptions{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	length, err := pool.ValueLen(key)
	if err != nil {
		t.Fatalf("ValueLen failed: %v", err)
	}
	if length != device.SectorSize {
		t.Errorf("Expected sector-rounded length %d, got %d", device.SectorSize, length)
	}

	// ValueLen must agree with the sector-rounded length Get reports.
	in := mustValue(t, 4096)
	if _, err := pool.Get(key, in); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	rounded := (in.Info.ValueLen + device.SectorSize - 1) / device.SectorSize * device.SectorSize
	if length != rounded {
		t.Errorf("ValueLen %d disagrees with rounded get length %d", length, rounded)
	}

	if _, err := pool.ValueLen(kv.KeyFromString("absent")); !IsNotFound(err) {
		t.Errorf("Expected RetCNotFound, got %v", err)
	}
}

func TestIterator(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool, err := s.GetOrCreatePool("iter")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	want := make(map[string]string)
	v := mustValue(t, 512)
	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("iter-key-%d", i)
		val := fmt.Sprintf("iter-value-%d", i)
		want[key] = val
		if err := v.SetBytes([]byte(val)); err != nil {
			t.Fatalf("SetBytes failed: %v", err)
		}
		if _, err := pool.Put(kv.KeyFromString(key), v, kv.WriteOptions{}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	it, err := pool.Iterate()
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	defer it.Close()

	seen := make(map[string]string)
	for it.Next() {
		key, value := it.Current()
		seen[string(key.Data())] = string(value.Bytes())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Iteration failed: %v", err)
	}

	if len(seen) != len(want) {
		t.Errorf("Expected %d entries, visited %d", len(want), len(seen))
	}
	for key, val := range want {
		if seen[key] != val {
			t.Errorf("Entry %s mismatch: %q", key, seen[key])
		}
	}

	// Exhaustion is idempotent.
	for i := 0; i < 3; i++ {
		if it.Next() {
			t.Errorf("Next must keep returning false after exhaustion")
		}
	}
}

func TestForEach(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()

	v := mustValue(t, 512)
	for i := 0; i < 10; i++ {
		if err := v.SetBytes([]byte("x")); err != nil {
			t.Fatalf("SetBytes failed: %v", err)
		}
		if _, err := pool.Put(kv.KeyFromString(fmt.Sprintf("fe-%d", i)), v, kv.WriteOptions{}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	count := 0
	err := pool.ForEach(func(key kv.Key, value *kv.Value) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if count != 10 {
		t.Errorf("Expected 10 entries, got %d", count)
	}

	// An fn error stops iteration and propagates; the cursor is still
	// released, so a follow-up iteration succeeds.
	stop := NewError(RetCValidation, "stop")
	count = 0
	err = pool.ForEach(func(key kv.Key, value *kv.Value) error {
		count++
		return stop
	})
	if err != stop {
		t.Errorf("Expected the fn error back, got %v", err)
	}
	if count != 1 {
		t.Errorf("Expected iteration to stop after one entry, got %d", count)
	}

	if err := pool.ForEach(func(kv.Key, *kv.Value) error { return nil }); err != nil {
		t.Errorf("Iteration after an aborted ForEach failed: %v", err)
	}
}

func TestBatchRejectsInvalidEntryWhole(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()

	ops := make([]BatchOp, 3)
	for i := range ops {
		v := mustValue(t, 512)
		if err := v.SetBytes([]byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("SetBytes failed: %v", err)
		}
		ops[i] = BatchOp{Key: kv.KeyFromString(fmt.Sprintf("batch-%d", i)), Value: v}
	}
	// One entry violates the key length bound.
	ops[1].Key = kv.NewKey(make([]byte, device.MaxKeySize+1))

	err := pool.BatchPut(ops)
	if CodeOf(err) != RetCValidation {
		t.Fatalf("Expected RetCValidation, got %v", err)
	}

	// Pre-validation must reject the whole batch before the device sees
	// it: the valid entries were not written.
	for _, i := range []int{0, 2} {
		found, err := pool.Exists(ops[i].Key)
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if found {
			t.Errorf("Entry %d was written despite the rejected batch", i)
		}
	}

	// Bounds: empty and oversized batches are rejected up front.
	if err := pool.BatchPut(nil); CodeOf(err) != RetCValidation {
		t.Errorf("Expected RetCValidation for an empty batch, got %v", err)
	}
	oversized := make([]kv.Key, device.MaxBatchSize+1)
	for i := range oversized {
		oversized[i] = kv.KeyFromString(fmt.Sprintf("k-%d", i))
	}
	if err := pool.BatchDelete(oversized); CodeOf(err) != RetCValidation {
		t.Errorf("Expected RetCValidation for an oversized batch, got %v", err)
	}
}

func TestBatchRoundTrip(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()

	puts := make([]BatchOp, device.MaxBatchSize)
	for i := range puts {
		v := mustValue(t, 512)
		if err := v.SetBytes([]byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("SetBytes failed: %v", err)
		}
		puts[i] = BatchOp{Key: kv.KeyFromString(fmt.Sprintf("batch-%d", i)), Value: v}
	}
	if err := pool.BatchPut(puts); err != nil {
		t.Fatalf("BatchPut failed: %v", err)
	}
	for i := range puts {
		if puts[i].Value.Info.ValueLen == 0 {
			t.Errorf("BatchPut must repopulate entry %d's metadata", i)
		}
	}

	gets := make([]BatchOp, len(puts))
	for i := range gets {
		gets[i] = BatchOp{Key: puts[i].Key, Value: mustValue(t, 512)}
	}
	if err := pool.BatchGet(gets); err != nil {
		t.Fatalf("BatchGet failed: %v", err)
	}
	for i := range gets {
		if !bytes.Equal(gets[i].Value.Bytes(), []byte(fmt.Sprintf("value-%d", i))) {
			t.Errorf("BatchGet entry %d mismatch: %q", i, gets[i].Value.Bytes())
		}
	}

	keys := make([]kv.Key, len(puts))
	for i := range keys {
		keys[i] = puts[i].Key
	}
	if err := pool.BatchDelete(keys); err != nil {
		t.Fatalf("BatchDelete failed: %v", err)
	}
	if found, _ := pool.Exists(keys[0]); found {
		t.Errorf("Keys must be gone after BatchDelete")
	}
}

func TestAsyncPoolDeletion(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})

	pool, err := s.GetOrCreatePool("doomed")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	v := mustValue(t, 512)
	if err := v.SetBytes([]byte("payload")); err != nil {
		t.Fatalf("SetBytes failed: %v", err)
	}
	key := kv.KeyFromString("k")
	if _, err := pool.Put(key, v, kv.WriteOptions{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := s.DeletePool(pool); err != nil {
		t.Fatalf("DeletePool failed: %v", err)
	}

	// The pool is immediately unusable.
	if _, err := pool.Put(key, v, kv.WriteOptions{}); !IsNotFound(err) {
		t.Errorf("Expected RetCNotFound right after DeletePool, got %v", err)
	}
	if _, err := pool.Get(key, v); !IsNotFound(err) {
		t.Errorf("Expected RetCNotFound right after DeletePool, got %v", err)
	}

	// The pool count drops only once the device reclaims. Poll with a
	// bound instead of asserting an immediate decrement.
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, err := s.Info()
		if err != nil {
			t.Fatalf("Info failed: %v", err)
		}
		if info.NumPools == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Pool count never dropped, still %d", info.NumPools)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPoolsDoubleCheck(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})

	for _, tag := range []string{"alpha", "beta", "gamma"} {
		if _, err := s.GetOrCreatePool(tag); err != nil {
			t.Fatalf("GetOrCreatePool failed: %v", err)
		}
	}

	listed, err := s.Pools()
	if err != nil {
		t.Fatalf("Pools failed: %v", err)
	}
	info, err := s.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if len(listed) != int(info.NumPools)+1 {
		t.Errorf("Listing reports %d pools, store info %d (+default)", len(listed), info.NumPools)
	}

	// Idempotence: the same tag resolves to the same handle.
	a, _ := s.GetOrCreatePool("alpha")
	b, _ := s.GetOrCreatePool("alpha")
	if a != b || a.ID() != b.ID() {
		t.Errorf("GetOrCreatePool must be idempotent by tag")
	}

	if _, err := s.GetOrCreatePool("a-tag-well-beyond-the-bound"); CodeOf(err) != RetCValidation {
		t.Errorf("Expected RetCValidation for an overlong tag, got %v", err)
	}
}

func TestVersionMismatchOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv0")

	s, err := Open(memdev.Open, path, device.Options{Version: 1})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A mismatched version fails the open and leaves no open store.
	reopened, err := Open(memdev.Open, path, device.Options{Version: 2})
	if CodeOf(err) != RetCConfig {
		t.Fatalf("Expected RetCConfig, got %v", err)
	}
	if reopened != nil {
		t.Fatalf("A failed open must not return a store")
	}

	s, err = Open(memdev.Open, path, device.Options{Version: 1})
	if err != nil {
		t.Fatalf("Reopen with the recorded version failed: %v", err)
	}
	if !s.IsOpen() {
		t.Errorf("Reopened store must report open")
	}
	_ = s.Close()
}

func TestGlobalExpiryConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv0")

	if _, err := Open(memdev.Open, path, device.Options{ExpiryMode: device.ExpiryGlobal}); CodeOf(err) != RetCConfig {
		t.Errorf("Expected RetCConfig without an expiry time, got %v", err)
	}

	s, err := Open(memdev.Open, path, device.Options{ExpiryMode: device.ExpiryGlobal, ExpiryTime: 3600})
	if err != nil {
		t.Fatalf("Open in global mode failed: %v", err)
	}
	defer s.Close()

	info, err := s.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.ExpiryMode != device.ExpiryGlobal {
		t.Errorf("Expected global expiry mode, got %s", info.ExpiryMode)
	}
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()

	if !s.IsOpen() {
		t.Fatalf("Fresh store must report open")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.IsOpen() {
		t.Errorf("Closed store must not report open")
	}

	// Close is a no-op on a closed store.
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	v := mustValue(t, 512)
	if _, err := pool.Get(kv.KeyFromString("k"), v); CodeOf(err) != RetCClosed {
		t.Errorf("Expected RetCClosed, got %v", err)
	}
	if _, err := s.GetOrCreatePool("p"); CodeOf(err) != RetCClosed {
		t.Errorf("Expected RetCClosed, got %v", err)
	}
	if _, err := s.Info(); CodeOf(err) != RetCClosed {
		t.Errorf("Expected RetCClosed, got %v", err)
	}
}

func TestUnusableValueRejected(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()
	key := kv.KeyFromString("k")

	var unallocated kv.Value
	if _, err := pool.Put(key, &unallocated, kv.WriteOptions{}); CodeOf(err) != RetCValidation {
		t.Errorf("Expected RetCValidation for an unallocated value, got %v", err)
	}

	released := mustValue(t, 512)
	released.Release()
	if _, err := pool.Put(key, released, kv.WriteOptions{}); CodeOf(err) != RetCValidation {
		t.Errorf("Expected RetCValidation for a released value, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Expected a panic for a nil value")
		}
	}()
	_, _ = pool.Put(key, nil, kv.WriteOptions{})
}

func TestLastErrorCompat(t *testing.T) {
	s := openTestStore(t, device.Options{Version: 1})
	pool := s.DefaultPool()

	v := mustValue(t, 512)
	if _, err := pool.Get(kv.KeyFromString("missing"), v); !IsNotFound(err) {
		t.Fatalf("Expected RetCNotFound, got %v", err)
	}
	if s.LastError() == 0 {
		t.Errorf("LastError must reflect the failed operation")
	}
}
