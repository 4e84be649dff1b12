// Sustained conversion benchmark: msgpack batches -> line protocol
// Usage: go run ./benchmarks/convert_bench [flags]
//
// Examples:
//   go run ./benchmarks/convert_bench --duration 30
//   go run ./benchmarks/convert_bench --workers 8 --batch-size 5000 --compress zstd
//   go run ./benchmarks/convert_bench --data-type racing --output /tmp/out.lp

package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basekick-labs/segment/internal/convert"
	"github.com/basekick-labs/segment/internal/metrics"
	"github.com/basekick-labs/segment/internal/sink"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

type Config struct {
	Duration    int
	Workers     int
	BatchSize   int
	Pregenerate int
	Compress    string
	DataType    string
	Output      string
}

type Stats struct {
	totalRows   atomic.Int64
	totalErrors atomic.Int64
	running     atomic.Bool
	// Per-worker latency slices, merged at the end
	workerLatencies [][]float64
}

func (s *Stats) initWorkers(n int) {
	s.workerLatencies = make([][]float64, n)
	for i := range s.workerLatencies {
		s.workerLatencies[i] = make([]float64, 0, 10000)
	}
}

func (s *Stats) addLatency(workerID int, ms float64) {
	s.workerLatencies[workerID] = append(s.workerLatencies[workerID], ms)
}

func (s *Stats) getPercentile(p float64) float64 {
	var total int
	for _, wl := range s.workerLatencies {
		total += len(wl)
	}
	if total == 0 {
		return 0
	}

	all := make([]float64, 0, total)
	for _, wl := range s.workerLatencies {
		all = append(all, wl...)
	}
	sort.Float64s(all)

	idx := int(float64(len(all)) * p)
	if idx >= len(all) {
		idx = len(all) - 1
	}
	return all[idx]
}

type rowFunc func(ts int64) map[string]interface{}

func iotRow() rowFunc {
	measurements := []string{"cpu", "mem", "disk", "net"}
	hosts := make([]string, 1000)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("server%03d", i)
	}
	return func(ts int64) map[string]interface{} {
		return map[string]interface{}{
			"m": measurements[rand.Intn(len(measurements))],
			"t": ts,
			"h": hosts[rand.Intn(len(hosts))],
			"tags": map[string]interface{}{
				"region": "us-east",
			},
			"fields": map[string]interface{}{
				"value":    rand.Float64() * 100,
				"cpu_idle": rand.Float64() * 100,
				"cpu_user": rand.Float64() * 100,
			},
		}
	}
}

func racingRow() rowFunc {
	carNumbers := []string{"1", "4", "11", "14", "16", "22", "44", "55", "63", "77"}
	drivers := []string{"VER", "NOR", "PER", "ALO", "LEC", "TSU", "HAM", "SAI", "RUS", "BOT"}
	return func(ts int64) map[string]interface{} {
		idx := rand.Intn(len(carNumbers))
		return map[string]interface{}{
			"m": "car_telemetry",
			"t": ts,
			"tags": map[string]interface{}{
				"car_number": carNumbers[idx],
				"driver":     drivers[idx],
			},
			"fields": map[string]interface{}{
				"speed":      50 + rand.Float64()*300,
				"engine_rpm": int64(8000 + rand.Intn(7000)),
				"throttle":   rand.Float64() * 100,
				"brake":      rand.Float64() * 100,
				"gear":       int64(1 + rand.Intn(8)),
				"drs":        rand.Intn(2) == 1, // booleans are dropped by convert
			},
		}
	}
}

func financialRow() rowFunc {
	symbols := []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META", "NVDA", "TSLA", "JPM", "V", "JNJ"}
	exchanges := []string{"NYSE", "NASDAQ", "ARCA", "BATS", "IEX"}
	return func(ts int64) map[string]interface{} {
		price := 10 + rand.Float64()*490
		return map[string]interface{}{
			"m": "trades",
			"t": ts,
			"tags": map[string]interface{}{
				"symbol":   symbols[rand.Intn(len(symbols))],
				"exchange": exchanges[rand.Intn(len(exchanges))],
			},
			"fields": map[string]interface{}{
				"price":    price,
				"bid":      price - rand.Float64()*0.04 - 0.01,
				"ask":      price + rand.Float64()*0.04 + 0.01,
				"volume":   uint64(1 + rand.Intn(999)),
				"trade_id": int64(1000000 + rand.Intn(8999999)),
				"venue":    "lit pool, \"primary\"",
			},
		}
	}
}

func generateBatches(count, batchSize int, row rowFunc) [][]byte {
	batches := make([][]byte, count)
	for i := 0; i < count; i++ {
		nowMicros := time.Now().UnixMicro()
		rows := make([]interface{}, batchSize)
		for j := range rows {
			rows[j] = row(nowMicros + int64(j))
		}

		data, err := msgpack.Marshal(map[string]interface{}{"batch": rows})
		if err != nil {
			panic(err)
		}
		batches[i] = data

		if (i+1)%100 == 0 {
			fmt.Printf("  Progress: %d/%d\n", i+1, count)
		}
	}
	return batches
}

func worker(id int, batches [][]byte, conv *convert.Converter, out *sink.Sink, stats *Stats) {
	for i := id; stats.running.Load(); i++ {
		batch := batches[i%len(batches)]

		start := time.Now()
		points, res, err := conv.Decode(batch)
		if err != nil {
			stats.totalErrors.Add(1)
			continue
		}
		for _, p := range points {
			if err := out.Write(p); err != nil {
				stats.totalErrors.Add(1)
			}
		}
		stats.addLatency(id, float64(time.Since(start).Microseconds())/1000)
		stats.totalRows.Add(int64(res.Rows))
	}
}

func main() {
	cfg := &Config{}
	flag.IntVar(&cfg.Duration, "duration", 30, "Test duration in seconds")
	flag.IntVar(&cfg.Workers, "workers", 4, "Concurrent workers")
	flag.IntVar(&cfg.BatchSize, "batch-size", 1000, "Rows per msgpack batch")
	flag.IntVar(&cfg.Pregenerate, "pregenerate", 200, "Batches generated before the run")
	flag.StringVar(&cfg.Compress, "compress", "none", "Output compression: none, gzip, zstd")
	flag.StringVar(&cfg.DataType, "data-type", "iot", "Payload shape: iot, racing, financial")
	flag.StringVar(&cfg.Output, "output", "", "Write line protocol here (default: discard)")
	flag.Parse()

	var row rowFunc
	switch cfg.DataType {
	case "iot":
		row = iotRow()
	case "racing":
		row = racingRow()
	case "financial":
		row = financialRow()
	default:
		fmt.Fprintf(os.Stderr, "unknown data type %q\n", cfg.DataType)
		os.Exit(2)
	}

	fmt.Printf("Generating %d batches of %d %s rows...\n", cfg.Pregenerate, cfg.BatchSize, cfg.DataType)
	batches := generateBatches(cfg.Pregenerate, cfg.BatchSize, row)

	m := metrics.New()
	sinkCfg := &sink.Config{
		Path:          cfg.Output,
		Compression:   cfg.Compress,
		BufferSize:    256 * 1024,
		FlushInterval: time.Second,
		Metrics:       m,
		Logger:        zerolog.Nop(),
	}
	var (
		out *sink.Sink
		err error
	)
	if cfg.Output == "" {
		out, err = sink.NewWriter(io.Discard, sinkCfg)
	} else {
		out, err = sink.New(sinkCfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	conv := convert.New(&convert.Config{Metrics: m, Logger: zerolog.Nop()})

	stats := &Stats{}
	stats.initWorkers(cfg.Workers)
	stats.running.Store(true)

	fmt.Printf("Running %d workers for %ds...\n", cfg.Workers, cfg.Duration)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(id, batches, conv, out, stats)
		}(i)
	}

	ticker := time.NewTicker(5 * time.Second)
	deadline := time.After(time.Duration(cfg.Duration) * time.Second)
loop:
	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			fmt.Printf("  [%5.0fs] %.0f rows/sec\n", elapsed, float64(stats.totalRows.Load())/elapsed)
		case <-deadline:
			break loop
		}
	}
	ticker.Stop()
	stats.running.Store(false)
	wg.Wait()
	elapsed := time.Since(start)

	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error: close output: %v\n", err)
	}

	snap := m.Snapshot(time.Now())
	fmt.Println()
	fmt.Println("Results")
	fmt.Printf("  Rows converted:  %d\n", stats.totalRows.Load())
	fmt.Printf("  Throughput:      %.0f rows/sec\n", float64(stats.totalRows.Load())/elapsed.Seconds())
	fmt.Printf("  Output:          %.1f MB\n", float64(snap.Bytes)/(1024*1024))
	fmt.Printf("  Dropped fields:  %d\n", snap.ConvertDropped)
	fmt.Printf("  Errors:          %d\n", stats.totalErrors.Load())
	fmt.Printf("  Batch p50:       %.2f ms\n", stats.getPercentile(0.50))
	fmt.Printf("  Batch p95:       %.2f ms\n", stats.getPercentile(0.95))
	fmt.Printf("  Batch p99:       %.2f ms\n", stats.getPercentile(0.99))
}
