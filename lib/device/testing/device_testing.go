package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flashkv/fKV/lib/device"
)

// DeviceFactory creates a fresh store for a test and returns the open
// device together with a reopen function bound to the same path. The
// factory fails the test itself if the store cannot be created.
type DeviceFactory func(t testing.TB, opts device.Options) (device.Device, ReopenFunc)

// ReopenFunc opens the store the factory created one more time, with the
// given options. Callers close the device they hold before reopening.
type ReopenFunc func(opts device.Options) (device.Device, error)

// RunDeviceTests runs a comprehensive test suite against a Device engine.
func RunDeviceTests(t *testing.T, name string, factory DeviceFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory)
		})

		t.Run("Exists&Delete", func(t *testing.T) {
			testExistsDelete(t, factory)
		})

		t.Run("KeyInfo", func(t *testing.T) {
			testKeyInfo(t, factory)
		})

		t.Run("Pools", func(t *testing.T) {
			testPools(t, factory)
		})

		t.Run("PoolReclaim", func(t *testing.T) {
			testPoolReclaim(t, factory)
		})

		t.Run("DeleteAll", func(t *testing.T) {
			testDeleteAll(t, factory)
		})

		t.Run("Batch", func(t *testing.T) {
			testBatch(t, factory)
		})

		t.Run("Iterator", func(t *testing.T) {
			testIterator(t, factory)
		})

		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, factory)
		})

		t.Run("GlobalExpiry", func(t *testing.T) {
			testGlobalExpiry(t, factory)
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory)
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory)
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the device supports the specified feature.
// Skip the test if it is not supported.
func requireFeature(t testing.TB, dev device.Device, feature device.Feature) {
	if !dev.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustGet(t testing.TB, dev device.Device, pool int, key []byte) []byte {
	t.Helper()
	buf := make([]byte, device.MaxValueSize)
	n, _, err := dev.Get(pool, key, buf)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return buf[:n]
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	key := []byte("test-key")
	value1 := []byte("test-value1")
	value2 := []byte("test-value2")

	info, err := dev.Put(device.DefaultPoolID, key, value1, 0, 0)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if info.ValueLen != len(value1) {
		t.Errorf("Expected ValueLen %d, got %d", len(value1), info.ValueLen)
	}
	if info.KeyLen != len(key) {
		t.Errorf("Expected KeyLen %d, got %d", len(key), info.KeyLen)
	}

	if got := mustGet(t, dev, device.DefaultPoolID, key); !bytes.Equal(got, value1) {
		t.Errorf("Expected value %s, got %s", value1, got)
	}

	// Overwrite replaces the value wholesale.
	if _, err := dev.Put(device.DefaultPoolID, key, value2, 0, 0); err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}
	if got := mustGet(t, dev, device.DefaultPoolID, key); !bytes.Equal(got, value2) {
		t.Errorf("Expected value %s, got %s", value2, got)
	}

	buf := make([]byte, 64)
	if _, _, err := dev.Get(device.DefaultPoolID, []byte("nonexistent-key"), buf); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent key, got %v", err)
	}

	// A too-small buffer fails but still reports the metadata so the
	// caller learns the required size.
	small := make([]byte, 4)
	_, info, err = dev.Get(device.DefaultPoolID, key, small)
	if !errors.Is(err, device.ErrBufferTooSmall) {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}
	if info.ValueLen != len(value2) {
		t.Errorf("Expected ValueLen %d on short read, got %d", len(value2), info.ValueLen)
	}

	// The engine must not alias the caller's buffer.
	mutable := []byte("mutable-value")
	if _, err := dev.Put(device.DefaultPoolID, []byte("alias-key"), mutable, 0, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	mutable[0] = 'X'
	if got := mustGet(t, dev, device.DefaultPoolID, []byte("alias-key")); got[0] == 'X' {
		t.Errorf("Engine aliased the caller's buffer")
	}
}

func testExistsDelete(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	key := []byte("exists-test-key")
	value := []byte("exists-test-value")

	var info device.KeyInfo
	found, err := dev.Exists(device.DefaultPoolID, key, &info)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if found {
		t.Errorf("Expected Exists to return false for nonexistent key")
	}

	if _, err := dev.Put(device.DefaultPoolID, key, value, 0, 3); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	found, err = dev.Exists(device.DefaultPoolID, key, &info)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !found {
		t.Errorf("Expected Exists to return true after Put")
	}
	if info.ValueLen != len(value) || info.GenCount != 3 {
		t.Errorf("Exists info mismatch: %+v", info)
	}

	if err := dev.Delete(device.DefaultPoolID, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	found, err = dev.Exists(device.DefaultPoolID, key, &info)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if found {
		t.Errorf("Expected Exists to return false after Delete")
	}

	if err := dev.Delete(device.DefaultPoolID, []byte("nonexistent-key")); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting nonexistent key, got %v", err)
	}
}

func testKeyInfo(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	key := []byte("info-key")
	value := []byte("info-value")

	if _, err := dev.Put(device.DefaultPoolID, key, value, 0, 42); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	info, err := dev.KeyInfo(device.DefaultPoolID, key)
	if err != nil {
		t.Fatalf("KeyInfo failed: %v", err)
	}
	if info.PoolID != device.DefaultPoolID {
		t.Errorf("Expected pool %d, got %d", device.DefaultPoolID, info.PoolID)
	}
	if info.KeyLen != len(key) || info.ValueLen != len(value) {
		t.Errorf("Size mismatch: %+v", info)
	}
	if info.GenCount != 42 {
		t.Errorf("Expected GenCount 42, got %d", info.GenCount)
	}

	if _, err := dev.KeyInfo(device.DefaultPoolID, []byte("nonexistent-key")); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func testPools(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	sessions, err := dev.GetOrCreatePool("sessions")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if sessions.ID == device.DefaultPoolID {
		t.Errorf("New pool must not reuse the default pool id")
	}

	// Same tag resolves to the same pool.
	again, err := dev.GetOrCreatePool("sessions")
	if err != nil {
		t.Fatalf("GetOrCreatePool (repeat) failed: %v", err)
	}
	if again.ID != sessions.ID {
		t.Errorf("Expected pool %d for repeated tag, got %d", sessions.ID, again.ID)
	}

	users, err := dev.GetOrCreatePool("users")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if users.ID == sessions.ID {
		t.Errorf("Distinct tags must map to distinct pools")
	}

	// Pools are isolated keyspaces.
	key := []byte("shared-key")
	if _, err := dev.Put(sessions.ID, key, []byte("in-sessions"), 0, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := dev.Put(users.ID, key, []byte("in-users"), 0, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := mustGet(t, dev, sessions.ID, key); !bytes.Equal(got, []byte("in-sessions")) {
		t.Errorf("Pool isolation broken: got %s", got)
	}

	if _, err := dev.GetOrCreatePool("this-tag-is-longer-than-allowed"); !errors.Is(err, device.ErrTagTooLong) {
		t.Errorf("Expected ErrTagTooLong, got %v", err)
	}

	pools, err := dev.Pools()
	if err != nil {
		t.Fatalf("Pools failed: %v", err)
	}
	tags := make(map[string]bool, len(pools))
	for _, p := range pools {
		tags[p.Tag] = true
	}
	if !tags["sessions"] || !tags["users"] {
		t.Errorf("Pools listing incomplete: %v", pools)
	}

	if err := dev.DeletePool(device.DefaultPoolID); !errors.Is(err, device.ErrProtectedPool) {
		t.Errorf("Expected ErrProtectedPool for the default pool, got %v", err)
	}

	if err := dev.DeletePool(users.ID); err != nil {
		t.Fatalf("DeletePool failed: %v", err)
	}
	if _, err := dev.Put(users.ID, key, []byte("x"), 0, 0); !errors.Is(err, device.ErrPoolNotFound) {
		t.Errorf("Expected ErrPoolNotFound after DeletePool, got %v", err)
	}

	if err := dev.DeleteAllPools(); err != nil {
		t.Fatalf("DeleteAllPools failed: %v", err)
	}
	if _, err := dev.Put(sessions.ID, key, []byte("x"), 0, 0); !errors.Is(err, device.ErrPoolNotFound) {
		t.Errorf("Expected ErrPoolNotFound after DeleteAllPools, got %v", err)
	}

	// The default pool survives.
	if _, err := dev.Put(device.DefaultPoolID, key, []byte("still-here"), 0, 0); err != nil {
		t.Errorf("Default pool must survive DeleteAllPools: %v", err)
	}
}

func testPoolReclaim(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	requireFeature(t, dev, device.FeatureAsyncPoolReclaim)

	p, err := dev.GetOrCreatePool("reclaim-me")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if _, err := dev.Put(p.ID, []byte("k"), []byte("v"), 0, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := dev.DeletePool(p.ID); err != nil {
		t.Fatalf("DeletePool failed: %v", err)
	}

	// The pool is immediately unusable even though reclamation is
	// asynchronous.
	if _, err := dev.Put(p.ID, []byte("k"), []byte("v"), 0, 0); !errors.Is(err, device.ErrPoolNotFound) {
		t.Errorf("Expected ErrPoolNotFound right after DeletePool, got %v", err)
	}

	// The pool count drops once the background reclamation catches up.
	// Poll with a bound instead of asserting an immediate drop.
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, err := dev.Info()
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

	// The tag becomes reusable and maps to a fresh pool.
	fresh, err := dev.GetOrCreatePool("reclaim-me")
	if err != nil {
		t.Fatalf("GetOrCreatePool after reclaim failed: %v", err)
	}
	if _, _, err := dev.Get(fresh.ID, []byte("k"), make([]byte, 16)); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Reclaimed pool leaked data: %v", err)
	}
}

func testDeleteAll(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	p, err := dev.GetOrCreatePool("bulk")
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		pool := device.DefaultPoolID
		if i%2 == 0 {
			pool = p.ID
		}
		if _, err := dev.Put(pool, key, []byte("value"), 0, 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if err := dev.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	// Content gone, pools intact.
	buf := make([]byte, 16)
	if _, _, err := dev.Get(device.DefaultPoolID, []byte("key-1"), buf); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after DeleteAll, got %v", err)
	}
	if _, _, err := dev.Get(p.ID, []byte("key-0"), buf); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after DeleteAll, got %v", err)
	}
	if _, err := dev.Put(p.ID, []byte("new-key"), []byte("new-value"), 0, 0); err != nil {
		t.Errorf("Pool must survive DeleteAll: %v", err)
	}
}

func testBatch(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	entries := make([]device.BatchEntry, device.MaxBatchSize)
	for i := range entries {
		entries[i] = device.BatchEntry{
			Key:  []byte(fmt.Sprintf("batch-key-%d", i)),
			Data: []byte(fmt.Sprintf("batch-value-%d", i)),
		}
	}

	infos, err := dev.BatchPut(device.DefaultPoolID, entries)
	if err != nil {
		t.Fatalf("BatchPut failed: %v", err)
	}
	if len(infos) != len(entries) {
		t.Fatalf("Expected %d infos, got %d", len(entries), len(infos))
	}
	for i, e := range entries {
		if got := mustGet(t, dev, device.DefaultPoolID, e.Key); !bytes.Equal(got, e.Data) {
			t.Errorf("Batch entry %d mismatch: got %s", i, got)
		}
	}

	if dev.SupportsFeature(device.FeatureBatchGet) {
		keys := make([][]byte, len(entries))
		bufs := make([][]byte, len(entries))
		for i := range entries {
			keys[i] = entries[i].Key
			bufs[i] = make([]byte, 64)
		}
		infos, err := dev.BatchGet(device.DefaultPoolID, keys, bufs)
		if err != nil {
			t.Fatalf("BatchGet failed: %v", err)
		}
		for i, info := range infos {
			if !bytes.Equal(bufs[i][:info.ValueLen], entries[i].Data) {
				t.Errorf("BatchGet entry %d mismatch", i)
			}
		}
	}

	if dev.SupportsFeature(device.FeatureBatchDelete) {
		// A failing entry aborts the batch but leaves the already
		// applied prefix in place.
		keys := [][]byte{
			entries[0].Key,
			[]byte("nonexistent-key"),
			entries[1].Key,
		}
		err := dev.BatchDelete(device.DefaultPoolID, keys)
		if !errors.Is(err, device.ErrBatchFailed) {
			t.Errorf("Expected ErrBatchFailed, got %v", err)
		}

		buf := make([]byte, 64)
		if _, _, err := dev.Get(device.DefaultPoolID, entries[0].Key, buf); !errors.Is(err, device.ErrNotFound) {
			t.Errorf("Prefix entry should have been deleted, got %v", err)
		}
		if _, _, err := dev.Get(device.DefaultPoolID, entries[1].Key, buf); err != nil {
			t.Errorf("Entry after the failure should survive: %v", err)
		}
	}
}

func testIterator(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	want := make(map[string][]byte)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("iter-key-%d", i)
		value := []byte(fmt.Sprintf("iter-value-%d", i))
		want[key] = value
		if _, err := dev.Put(device.DefaultPoolID, []byte(key), value, 0, 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	iter, err := dev.BeginIterator(device.DefaultPoolID)
	if err != nil {
		t.Fatalf("BeginIterator failed: %v", err)
	}
	defer dev.EndIterator(iter)

	keyBuf := make([]byte, device.MaxKeySize)
	valBuf := make([]byte, 1024)

	seen := make(map[string]bool)
	for {
		ok, err := dev.Next(iter)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}

		keyLen, info, err := dev.GetCurrent(iter, keyBuf, valBuf)
		if err != nil {
			t.Fatalf("GetCurrent failed: %v", err)
		}
		key := string(keyBuf[:keyLen])

		if seen[key] {
			t.Errorf("Key %s visited twice", key)
		}
		seen[key] = true

		expected, ok := want[key]
		if !ok {
			t.Errorf("Iterator produced unknown key %s", key)
			continue
		}
		if !bytes.Equal(valBuf[:info.ValueLen], expected) {
			t.Errorf("Value mismatch for key %s", key)
		}
	}
	if len(seen) != len(want) {
		t.Errorf("Expected %d keys, visited %d", len(want), len(seen))
	}

	// Exhaustion is idempotent.
	for i := 0; i < 3; i++ {
		ok, err := dev.Next(iter)
		if err != nil {
			t.Fatalf("Next after exhaustion failed: %v", err)
		}
		if ok {
			t.Errorf("Next must keep reporting exhaustion")
		}
	}

	if _, err := dev.BeginIterator(9999); !errors.Is(err, device.ErrPoolNotFound) {
		t.Errorf("Expected ErrPoolNotFound, got %v", err)
	}
}

func testExpiry(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1, ExpiryMode: device.ExpiryArbitrary})
	defer dev.Destroy()

	key := []byte("expiring-key")
	value := []byte("expiring-value")

	info, err := dev.Put(device.DefaultPoolID, key, value, 1, 0)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if info.Expiry != 1 {
		t.Errorf("Expected Expiry 1, got %d", info.Expiry)
	}

	if got := mustGet(t, dev, device.DefaultPoolID, key); !bytes.Equal(got, value) {
		t.Errorf("Key should be readable before expiry")
	}

	time.Sleep(1100 * time.Millisecond)

	buf := make([]byte, 64)
	if _, _, err := dev.Get(device.DefaultPoolID, key, buf); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
	var scratch device.KeyInfo
	if found, _ := dev.Exists(device.DefaultPoolID, key, &scratch); found {
		t.Errorf("Expired key must be invisible to Exists")
	}
	if err := dev.Delete(device.DefaultPoolID, key); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting an expired key, got %v", err)
	}

	// Expiry zero means no expiry.
	if _, err := dev.Put(device.DefaultPoolID, []byte("eternal-key"), value, 0, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := dev.Put(device.DefaultPoolID, []byte("lingering-key"), value, 1, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, _, err := dev.Get(device.DefaultPoolID, []byte("eternal-key"), buf); err != nil {
		t.Errorf("Key with expiry 0 must not expire: %v", err)
	}

	// The store info reflects only the entries reads can see, however
	// the engine disposes of expired ones.
	info2, err := dev.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info2.NumKeys != 1 {
		t.Errorf("Expected NumKeys 1 (the unexpired key), got %d", info2.NumKeys)
	}
}

func testGlobalExpiry(t *testing.T, factory DeviceFactory) {
	disabled, _ := factory(t, device.Options{Version: 1})
	if err := disabled.SetGlobalExpiry(10); !errors.Is(err, device.ErrExpiryConfig) {
		t.Errorf("Expected ErrExpiryConfig outside global mode, got %v", err)
	}
	_ = disabled.Destroy()

	dev, _ := factory(t, device.Options{Version: 1, ExpiryMode: device.ExpiryGlobal, ExpiryTime: 3600})
	defer dev.Destroy()

	requireFeature(t, dev, device.FeatureGlobalExpiry)

	if err := dev.SetGlobalExpiry(1); err != nil {
		t.Fatalf("SetGlobalExpiry failed: %v", err)
	}

	// The per-put expiry is ignored in global mode.
	info, err := dev.Put(device.DefaultPoolID, []byte("global-key"), []byte("v"), 9999, 0)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if info.Expiry != 1 {
		t.Errorf("Expected the global expiry 1, got %d", info.Expiry)
	}

	time.Sleep(1100 * time.Millisecond)

	buf := make([]byte, 16)
	if _, _, err := dev.Get(device.DefaultPoolID, []byte("global-key"), buf); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after global expiry, got %v", err)
	}
}

func testReopen(t *testing.T, factory DeviceFactory) {
	dev, reopen := factory(t, device.Options{Version: 7})

	persistent := dev.SupportsFeature(device.FeaturePersistence)
	if _, err := dev.Put(device.DefaultPoolID, []byte("survivor"), []byte("payload"), 0, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The version recorded at first open is authoritative.
	if _, err := reopen(device.Options{Version: 8}); !errors.Is(err, device.ErrVersionMismatch) {
		t.Fatalf("Expected ErrVersionMismatch, got %v", err)
	}

	dev, err := reopen(device.Options{Version: 7})
	if err != nil {
		t.Fatalf("Reopen with matching version failed: %v", err)
	}
	defer dev.Destroy()

	if persistent {
		if got := mustGet(t, dev, device.DefaultPoolID, []byte("survivor")); !bytes.Equal(got, []byte("payload")) {
			t.Errorf("Expected payload to survive reopen, got %s", got)
		}
	}
}

func testClosed(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Close is idempotent.
	if err := dev.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	if _, err := dev.Put(device.DefaultPoolID, []byte("k"), []byte("v"), 0, 0); !errors.Is(err, device.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, _, err := dev.Get(device.DefaultPoolID, []byte("k"), make([]byte, 8)); !errors.Is(err, device.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := dev.Info(); !errors.Is(err, device.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func testRealisticUsage(t *testing.T, factory DeviceFactory) {
	dev, _ := factory(t, device.Options{Version: 1})
	defer dev.Destroy()

	numWorkers := 8
	opsPerWorker := 500

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			buf := make([]byte, 1024)
			for i := 0; i < opsPerWorker; i++ {
				var key []byte
				if i%5 == 0 {
					key = []byte(fmt.Sprintf("hot-key-%d", i%50))
				} else {
					key = []byte(fmt.Sprintf("key-%d-%d", workerId, i))
				}

				switch i % 10 {
				case 0, 1, 2, 3, 4, 5, 6:
					value := make([]byte, 64)
					for j := range value {
						value[j] = byte((i + j) % 256)
					}
					if _, err := dev.Put(device.DefaultPoolID, key, value, 0, uint32(i)); err != nil {
						t.Errorf("Put failed: %v", err)
						return
					}
				case 7, 8:
					_, _, err := dev.Get(device.DefaultPoolID, key, buf)
					if err != nil && !errors.Is(err, device.ErrNotFound) {
						t.Errorf("Get failed: %v", err)
						return
					}
				case 9:
					err := dev.Delete(device.DefaultPoolID, key)
					if err != nil && !errors.Is(err, device.ErrNotFound) {
						t.Errorf("Delete failed: %v", err)
						return
					}
				}
			}
		}(w)
	}

	wg.Wait()

	// Every worker's private keys written in the final tenth of its run
	// must still be readable.
	buf := make([]byte, 1024)
	for w := 0; w < numWorkers; w++ {
		key := []byte(fmt.Sprintf("key-%d-%d", w, opsPerWorker-4))
		if _, _, err := dev.Get(device.DefaultPoolID, key, buf); err != nil {
			t.Errorf("Worker %d key lost: %v", w, err)
		}
	}
}
