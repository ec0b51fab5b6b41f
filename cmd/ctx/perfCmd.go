package ctx

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtx/cmd/util"
	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the context store",
		Long:    util.WrapString("Runs every benchmark on a fresh random scope which is deleted afterwards."),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// perfRegistry holds one latency timer per benchmark
	perfRegistry = gometrics.NewRegistry()
)

// perfResult combines the benchmark result with the latency distribution of single operations
type perfResult struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
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
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	scope := "__perf-" + uuid.NewString()
	defer store.Delete(scope)

	fmt.Println("Performance testing tool for the context store")

	// Print configuration
	config := store.Config()
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Scope: %s\n", store.PrefixedScope(scope))
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	keys := make([]string, perfKeySpread)
	values := make([]any, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		values[i] = map[string]any{"index": i, "payload": "test"}
	}
	key := func(i int) string { return keys[i%perfKeySpread] }
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)

	// fill the scope for the read benchmarks
	fill := func() {
		if err := store.SetMany(ctx, scope, keys, values); err != nil {
			Logger.Warningf("(fill) - error setting keys: %v", err)
		}
	}

	benchmarks := []struct {
		name    string
		prepare func()
		op      func(i int) error
	}{
		{"set", nil, func(i int) error {
			return store.Set(ctx, scope, key(i), "test")
		}},
		{"set-large", nil, func(i int) error {
			return store.Set(ctx, scope, key(i), largeValue)
		}},
		{"set-many", nil, func(int) error {
			return store.SetMany(ctx, scope, keys, values)
		}},
		{"get", fill, func(i int) error {
			_, err := store.Get(ctx, scope, key(i))
			return err
		}},
		{"get-many", fill, func(int) error {
			_, err := store.GetMany(ctx, scope, keys)
			return err
		}},
		{"keys", fill, func(int) error {
			_, err := store.Keys(ctx, scope)
			return err
		}},
		{"unset", fill, func(i int) error {
			return store.Set(ctx, scope, key(i), ctxstore.Undefined)
		}},
		{"mixed", fill, func(i int) error {
			var err error
			switch i % 4 {
			case 0: // set
				err = store.Set(ctx, scope, key(i), "test")
			case 1: // get
				_, err = store.Get(ctx, scope, key(i))
			case 2: // keys
				_, err = store.Keys(ctx, scope)
			case 3: // unset
				err = store.Set(ctx, scope, key(i), ctxstore.Undefined)
			}
			return err
		}},
	}

	// Create results map
	results := make(map[string]perfResult)
	order := make([]string, 0, len(benchmarks))

	for _, bm := range benchmarks {
		timer := gometrics.GetOrRegisterTimer(bm.name, perfRegistry)

		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}
			if bm.prepare != nil {
				bm.prepare()
			}

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := bm.op(counter); err != nil {
						Logger.Warningf("(%s) - error performing operation: %v", bm.name, err)
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		results[bm.name] = perfResult{bench: result, timer: timer}
		order = append(order, bm.name)
		printResult(bm.name, results[bm.name])
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// percentiles reported for every benchmark
var perfPercentiles = []float64{0.5, 0.95, 0.99}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := result.timer.Percentiles(perfPercentiles)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50 %s\tp95 %s\tp99 %s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(p[0]), time.Duration(p[1]), time.Duration(p[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results map[string]perfResult, config ctxstore.Config) error {
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
		"Host", "Port", "DB", "TimeoutSec", "AwaitUnset", "Codec",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range order {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		p := make([]float64, len(perfPercentiles))

		if result.bench.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			p = result.timer.Percentiles(perfPercentiles)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			fmt.Sprintf("%.0f", p[2]),
			skipped,
			config.Host,
			strconv.Itoa(config.Port),
			strconv.Itoa(config.DB),
			strconv.Itoa(config.TimeoutSecond),
			strconv.FormatBool(config.AwaitUnset),
			viper.GetString("codec"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
