package kv

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/flashkv/fKV/cmd/util"
	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/kv"
	"github.com/flashkv/fKV/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for fKV stores",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfLog          = util.CreateLogger("perf")
	perfKeyPrefix    = "__test"
	perfLargeValueKB = 100
	perfNumThreads   = 10
	perfKeySpread    = 100
	perfSkip         = make([]string, 0)

	// latency timers, one per benchmark, registered for the CSV export
	perfTimers = gometrics.NewRegistry()
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfLargeValueKB*1024 > device.MaxValueSize {
		return fmt.Errorf("large-value-size %dKB exceeds the device maximum of %d bytes",
			perfLargeValueKB, device.MaxValueSize)
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for fKV stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(kvConf.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	results["put"] = runBench("put", func(b *testing.B, timer gometrics.Timer) {
		getKey, iter := getKeys("put")
		b.Cleanup(func() { cleanupKeys("put", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			v, err := kv.NewValue(64)
			if err != nil {
				perfLog.Errorf("(put) - allocation failed: %v", err)
				return
			}
			defer v.Release()
			_ = v.SetBytes([]byte("test-payload"))

			counter := 0
			for pb.Next() {
				timer.Time(func() {
					if _, err := kvPool.Put(getKey(counter), v, kv.WriteOptions{}); err != nil {
						perfLog.Errorf("(put) - error putting key: %v", err)
					}
				})
				counter++
			}
		})
	})
	printResult("put", results["put"])

	results["put-large"] = runBench("put-large", func(b *testing.B, timer gometrics.Timer) {
		getKey, iter := getKeys("put-large")
		b.Cleanup(func() { cleanupKeys("put-large", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			v, err := kv.NewValue(perfLargeValueKB * 1024)
			if err != nil {
				perfLog.Errorf("(put-large) - allocation failed: %v", err)
				return
			}
			defer v.Release()
			_ = v.SetBytes(make([]byte, perfLargeValueKB*1024))

			counter := 0
			for pb.Next() {
				timer.Time(func() {
					if _, err := kvPool.Put(getKey(counter), v, kv.WriteOptions{}); err != nil {
						perfLog.Errorf("(put-large) - error putting key: %v", err)
					}
				})
				counter++
			}
		})
	})
	printResult("put-large", results["put-large"])

	results["get"] = runBench("get", func(b *testing.B, timer gometrics.Timer) {
		getKey, iter := getKeys("get")
		seedKeys("get", iter)
		b.Cleanup(func() { cleanupKeys("get", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			v, err := kv.NewValue(4096)
			if err != nil {
				perfLog.Errorf("(get) - allocation failed: %v", err)
				return
			}
			defer v.Release()

			counter := 0
			for pb.Next() {
				timer.Time(func() {
					if _, err := kvPool.Get(getKey(counter), v); err != nil {
						perfLog.Errorf("(get) - error getting key: %v", err)
					}
				})
				counter++
			}
		})
	})
	printResult("get", results["get"])

	results["exists"] = runBench("exists", func(b *testing.B, timer gometrics.Timer) {
		getKey, iter := getKeys("exists")
		seedKeys("exists", iter)
		b.Cleanup(func() { cleanupKeys("exists", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				timer.Time(func() {
					if _, err := kvPool.Exists(getKey(counter)); err != nil {
						perfLog.Errorf("(exists) - error checking key: %v", err)
					}
				})
				counter++
			}
		})
	})
	printResult("exists", results["exists"])

	results["exists-not"] = runBench("exists-not", func(b *testing.B, timer gometrics.Timer) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := kv.KeyFromString(fmt.Sprintf("%s/exists-not-%d", perfKeyPrefix, counter%100))
				timer.Time(func() {
					if _, err := kvPool.Exists(key); err != nil {
						perfLog.Errorf("(exists-not) - error checking key: %v", err)
					}
				})
				counter++
			}
		})
	})
	printResult("exists-not", results["exists-not"])

	results["delete"] = runBench("delete", func(b *testing.B, timer gometrics.Timer) {
		getKey, iter := getKeys("delete")
		seedKeys("delete", iter)
		b.Cleanup(func() { cleanupKeys("delete", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				timer.Time(func() {
					err := kvPool.Delete(getKey(counter))
					if err != nil && !store.IsNotFound(err) {
						perfLog.Errorf("(delete) - error deleting key: %v", err)
					}
				})
				counter++
			}
		})
	})
	printResult("delete", results["delete"])

	results["mixed"] = runBench("mixed", func(b *testing.B, timer gometrics.Timer) {
		getKey, iter := getKeys("mixed")
		seedKeys("mixed", iter)
		b.Cleanup(func() { cleanupKeys("mixed", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			v, err := kv.NewValue(4096)
			if err != nil {
				perfLog.Errorf("(mixed) - allocation failed: %v", err)
				return
			}
			defer v.Release()
			_ = v.SetBytes([]byte("test-payload"))

			counter := 0
			for pb.Next() {
				key := getKey(counter)
				timer.Time(func() {
					var err error
					switch counter % 4 {
					case 0: // put
						_, err = kvPool.Put(key, v, kv.WriteOptions{})
					case 1: // get
						_, err = kvPool.Get(key, v)
					case 2: // delete
						err = kvPool.Delete(key)
					case 3: // exists
						_, err = kvPool.Exists(key)
					}
					if err != nil && !store.IsNotFound(err) {
						perfLog.Errorf("(mixed) - error performing operation (%d): %v", counter%4, err)
					}
				})
				counter++
			}
		})
	})
	printResult("mixed", results["mixed"])

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBench runs one named benchmark with a registered latency timer,
// unless the name is in the skip list.
func runBench(name string, fn func(b *testing.B, timer gometrics.Timer)) testing.BenchmarkResult {
	if shouldSkip(name) {
		return testing.BenchmarkResult{}
	}
	timer := gometrics.GetOrRegisterTimer(name, perfTimers)
	return testing.Benchmark(func(b *testing.B) {
		fn(b, timer)
	})
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) kv.Key, func(func(kv.Key))) {
	keys := make([]kv.Key, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = kv.KeyFromString(fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i))
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) kv.Key {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(kv.Key)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// seedKeys writes a small payload under every test key
func seedKeys(test string, iter func(func(kv.Key))) {
	v, err := kv.NewValue(64)
	if err != nil {
		perfLog.Errorf("(%s) - allocation failed: %v", test, err)
		return
	}
	defer v.Release()
	_ = v.SetBytes([]byte("test-payload"))

	iter(func(k kv.Key) {
		if _, err := kvPool.Put(k, v, kv.WriteOptions{}); err != nil {
			perfLog.Errorf("(%s) - error seeding key: %v", test, err)
		}
	})
}

// cleanupKeys removes every test key after a benchmark
func cleanupKeys(test string, iter func(func(kv.Key))) {
	iter(func(k kv.Key) {
		err := kvPool.Delete(k)
		if err != nil && !store.IsNotFound(err) {
			perfLog.Errorf("(%s) - error deleting key: %v", test, err)
		}
	})
}

// printResult prints the result of a benchmark test in a formatted way,
// including the latency percentiles collected by the test's timer
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	timer := perfTimers.Get(test).(gometrics.Timer)
	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P95Ns", "P99Ns", "Skipped",
		"Path", "Engine", "Pool", "ExpiryMode",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var p50, p95, p99 float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			if timer, ok := perfTimers.Get(test).(gometrics.Timer); ok {
				ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
				p50, p95, p99 = ps[0], ps[1], ps[2]
			}
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", p50),
			fmt.Sprintf("%.0f", p95),
			fmt.Sprintf("%.0f", p99),
			skipped,
			kvConf.Path,
			kvConf.Engine,
			kvConf.Pool,
			kvConf.Options.ExpiryMode.String(),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
