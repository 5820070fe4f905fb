// Package testing provides standardised tests and benchmarks for storage
// engines that satisfy the device.Device interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the Device interface contract
//   - benchmark: Performance tests for measuring throughput of common device operations
//
// Engines differ in capabilities, so the suite probes SupportsFeature and
// skips tests for features an engine does not claim.
//
// Example usage:
//
//	// Creating a factory function for your engine
//	factory := func(t testing.TB, opts device.Options) (device.Device, devtesting.ReopenFunc) {
//		path := filepath.Join(t.TempDir(), "store")
//		dev, err := Open(path, opts)
//		if err != nil {
//			t.Fatalf("Open failed: %v", err)
//		}
//		return dev, func(opts device.Options) (device.Device, error) {
//			return Open(path, opts)
//		}
//	}
//
//	// Running the standard test suite
//	devtesting.RunDeviceTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	devtesting.RunDeviceBenchmarks(b, "MyEngine", factory)
package testing
