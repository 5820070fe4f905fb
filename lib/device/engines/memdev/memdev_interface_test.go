package memdev

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/device/engines/memdev/internal"
	devtesting "github.com/flashkv/fKV/lib/device/testing"
	"github.com/flashkv/fKV/lib/device/util"
)

var pathCounter atomic.Int64

func Test(t *testing.T) {
	devtesting.RunDeviceTests(t, "MemDev", func(t testing.TB, opts device.Options) (device.Device, devtesting.ReopenFunc) {
		path := filepath.Join(t.TempDir(), fmt.Sprintf("memdev-%d", pathCounter.Add(1)))
		eopts := DefaultOptions()
		eopts.ReclaimInterval = 10 * time.Millisecond

		dev, err := OpenWith(path, opts, eopts)
		if err != nil {
			t.Fatalf("OpenWith failed: %v", err)
		}
		return dev, func(opts device.Options) (device.Device, error) {
			return OpenWith(path, opts, eopts)
		}
	})
}

func Benchmark(b *testing.B) {
	devtesting.RunDeviceBenchmarks(b, "MemDev", func(t testing.TB, opts device.Options) (device.Device, devtesting.ReopenFunc) {
		path := filepath.Join(t.TempDir(), fmt.Sprintf("memdev-bench-%d", pathCounter.Add(1)))
		dev, err := Open(path, opts)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return dev, func(opts device.Options) (device.Device, error) {
			return Open(path, opts)
		}
	})
}

// openUnreclaimed opens a store whose reclamation loop effectively never
// runs, so expired entries stay in their slots for the whole test.
func openUnreclaimed(t *testing.T, mode device.ExpiryMode) device.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("memdev-%d", pathCounter.Add(1)))
	eopts := DefaultOptions()
	eopts.ReclaimInterval = time.Hour

	dev, err := OpenWith(path, device.Options{Version: 1, ExpiryMode: mode}, eopts)
	if err != nil {
		t.Fatalf("OpenWith failed: %v", err)
	}
	t.Cleanup(func() {
		_ = dev.Destroy()
	})
	return dev
}

// Overwriting an entry that expired before reclamation dropped it replaces
// the slot: the key is not counted twice and the old payload's sectors are
// given back.
func TestExpiredOverwriteAccounting(t *testing.T) {
	dev := openUnreclaimed(t, device.ExpiryArbitrary)

	key := []byte("rewritten-key")
	if _, err := dev.Put(device.DefaultPoolID, key, []byte("first"), 1, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	before, err := dev.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err := dev.Put(device.DefaultPoolID, key, []byte("second"), 0, 0); err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}

	after, err := dev.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if after.NumKeys != 1 {
		t.Errorf("Expected NumKeys 1 after overwriting an expired entry, got %d", after.NumKeys)
	}
	// Both payloads round to one sector, so the overwrite must be
	// space-neutral.
	if after.FreeSpace != before.FreeSpace {
		t.Errorf("FreeSpace drifted across the overwrite: %d != %d", after.FreeSpace, before.FreeSpace)
	}
}

// Deleting an entry that expired before reclamation dropped it reports the
// same absence the read operations do, and still frees the slot.
func TestExpiredDelete(t *testing.T) {
	dev := openUnreclaimed(t, device.ExpiryArbitrary)

	key := []byte("ghost-key")
	if _, err := dev.Put(device.DefaultPoolID, key, []byte("payload"), 1, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	if err := dev.Delete(device.DefaultPoolID, key); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting an expired key, got %v", err)
	}

	info, err := dev.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.NumKeys != 0 {
		t.Errorf("Expected NumKeys 0 after the delete swept the slot, got %d", info.NumKeys)
	}
	if info.FreeSpace != defaultCapacity {
		t.Errorf("Expected all space back, %d bytes still held", defaultCapacity-info.FreeSpace)
	}
}

// The shard selector must spread realistic key shapes evenly, otherwise a
// hot shard serializes the store.
func TestShardDistribution(t *testing.T) {
	const numShards = 32
	const numKeys = 100_000

	seed := util.GenerateSeed()
	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	counts := make(map[*internal.Shard]float64, numShards)
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("user:%d:session", i))
		counts[internal.GetShard(util.HashBytes(key, seed), shards)]++
	}

	values := make([]float64, 0, numShards)
	for _, s := range shards {
		values = append(values, counts[s])
	}

	stats := util.NewStats(values)
	if stats.Min == 0 {
		t.Errorf("At least one shard received no keys: %+v", stats)
	}
	if stats.MinMaxRatio < 0.5 {
		t.Errorf("Shard distribution too skewed: %+v", stats)
	}
}
