package testing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/flashkv/fKV/lib/device"
)

// RunDeviceBenchmarks runs all benchmarks for a Device engine.
func RunDeviceBenchmarks(b *testing.B, name string, factory DeviceFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory)
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, factory)
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, factory)
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory)
	})

	b.Run("Exists", func(b *testing.B) {
		benchmarkExists(b, factory)
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory)
	})

	b.Run("Iterate", func(b *testing.B) {
		benchmarkIterate(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory)
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func openBench(b *testing.B, factory DeviceFactory) device.Device {
	dev, _ := factory(b, device.Options{Version: 1})
	b.Cleanup(func() {
		_ = dev.Destroy()
	})
	return dev
}

// Benchmark for Put with fresh keys
func benchmarkPut(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", counter))
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			_, _ = dev.Put(device.DefaultPoolID, key, value, 0, 0)
			counter++
		}
	})
}

// Benchmark for Put over existing keys
func benchmarkPutExisting(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("test-key-%d", i))
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if _, err := dev.Put(device.DefaultPoolID, key, value, 0, 0); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", counter%numKeys))
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			_, _ = dev.Put(device.DefaultPoolID, key, value, 0, 0)
			counter++
		}
	})
}

// Benchmark for Put with values near the device maximum
func benchmarkPutLargeValue(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	value := make([]byte, device.MaxValueSize)
	for i := range value {
		value[i] = byte(i % 256)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("large-key-%d", i%64))
		if _, err := dev.Put(device.DefaultPoolID, key, value, 0, 0); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

// Benchmark for Get
func benchmarkGet(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("test-key-%d", i))
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if _, err := dev.Put(device.DefaultPoolID, key, value, 0, 0); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		buf := make([]byte, 64)
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", counter%numKeys))
			_, _, _ = dev.Get(device.DefaultPoolID, key, buf)
			counter++
		}
	})
}

// Benchmark for Exists
func benchmarkExists(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("test-key-%d", i))
		if _, err := dev.Put(device.DefaultPoolID, key, []byte("v"), 0, 0); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var info device.KeyInfo
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", counter%(numKeys*2)))
			_, _ = dev.Exists(device.DefaultPoolID, key, &info)
			counter++
		}
	})
}

// Benchmark for Delete
func benchmarkDelete(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("test-key-%d", i))
		if _, err := dev.Put(device.DefaultPoolID, key, []byte("v"), 0, 0); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("test-key-%d", i))
		_ = dev.Delete(device.DefaultPoolID, key)
	}
}

// Benchmark for a full cursor sweep over a populated pool
func benchmarkIterate(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("test-key-%d", i))
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if _, err := dev.Put(device.DefaultPoolID, key, value, 0, 0); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	keyBuf := make([]byte, device.MaxKeySize)
	valBuf := make([]byte, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		iter, err := dev.BeginIterator(device.DefaultPoolID)
		if err != nil {
			b.Fatalf("BeginIterator failed: %v", err)
		}
		for {
			ok, err := dev.Next(iter)
			if err != nil {
				b.Fatalf("Next failed: %v", err)
			}
			if !ok {
				break
			}
			if _, _, err := dev.GetCurrent(iter, keyBuf, valBuf); err != nil {
				b.Fatalf("GetCurrent failed: %v", err)
			}
		}
		dev.EndIterator(iter)
	}
}

// Benchmark for a mixed put/get/delete workload
func benchmarkMixedUsage(b *testing.B, factory DeviceFactory) {
	dev := openBench(b, factory)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		buf := make([]byte, 64)
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", counter%1000))
			switch counter % 10 {
			case 0, 1, 2, 3, 4, 5, 6:
				value := []byte(fmt.Sprintf("test-value-%d", counter))
				_, _ = dev.Put(device.DefaultPoolID, key, value, 0, 0)
			case 7, 8:
				_, _, err := dev.Get(device.DefaultPoolID, key, buf)
				if err != nil && !errors.Is(err, device.ErrNotFound) {
					b.Errorf("Get failed: %v", err)
				}
			case 9:
				err := dev.Delete(device.DefaultPoolID, key)
				if err != nil && !errors.Is(err, device.ErrNotFound) {
					b.Errorf("Delete failed: %v", err)
				}
			}
			counter++
		}
	})
}
