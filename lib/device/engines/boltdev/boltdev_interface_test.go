package boltdev

import (
	"path/filepath"
	"testing"

	"github.com/flashkv/fKV/lib/device"
	devtesting "github.com/flashkv/fKV/lib/device/testing"
)

func Test(t *testing.T) {
	devtesting.RunDeviceTests(t, "BoltDev", func(t testing.TB, opts device.Options) (device.Device, devtesting.ReopenFunc) {
		path := filepath.Join(t.TempDir(), "store.db")
		dev, err := Open(path, opts)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return dev, func(opts device.Options) (device.Device, error) {
			return Open(path, opts)
		}
	})
}

func Benchmark(b *testing.B) {
	devtesting.RunDeviceBenchmarks(b, "BoltDev", func(t testing.TB, opts device.Options) (device.Device, devtesting.ReopenFunc) {
		path := filepath.Join(t.TempDir(), "bench.db")
		dev, err := Open(path, opts)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return dev, func(opts device.Options) (device.Device, error) {
			return Open(path, opts)
		}
	})
}

// The entry header must round-trip all metadata fields without loss.
func TestEntryEncoding(t *testing.T) {
	payload := []byte("the-payload")
	raw := encodeEntry(payload, 30, 1700000000, 7)

	got, expirySec, expireAt, genCount, err := decodeEntry(raw)
	if err != nil {
		t.Fatalf("decodeEntry failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Payload mismatch: %q", got)
	}
	if expirySec != 30 || expireAt != 1700000000 || genCount != 7 {
		t.Errorf("Header mismatch: %d %d %d", expirySec, expireAt, genCount)
	}

	if _, _, _, _, err := decodeEntry(raw[:8]); err == nil {
		t.Errorf("Expected an error for a truncated entry")
	}
}
