package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stream-anomaly-detector/analytics"
	"stream-anomaly-detector/models"
	"stream-anomaly-detector/simulator"
	"stream-anomaly-detector/sink"
)

var (
	processedCount int64
	anomalyCount   int64
	latencies      []int64
	latenciesLock  sync.Mutex
)

var (
	streams   int
	perStream int
	window    int
	threshold float64
)

var rootCmd = &cobra.Command{
	Use:          "throughput",
	Short:        "Drive in-process classifiers and report submit-to-emit latency",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runThroughput(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().IntVar(&streams, "streams", 4, "number of independent streams")
	rootCmd.Flags().IntVar(&perStream, "samples", 200000, "samples per stream")
	rootCmd.Flags().IntVar(&window, "window", models.DefaultWindowSize, "rolling window size")
	rootCmd.Flags().Float64Var(&threshold, "threshold", models.DefaultThreshold, "z-score threshold")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runThroughput(ctx context.Context) error {
	fmt.Printf("Throughput Test Configuration:\n")
	fmt.Printf("  Streams:     %d\n", streams)
	fmt.Printf("  Samples:     %d per stream\n", perStream)
	fmt.Printf("  Window:      %d\n", window)
	fmt.Printf("  Threshold:   %.2f\n\n", threshold)

	latencies = make([]int64, 0, streams*perStream)

	out := sink.Func(func(record models.ClassificationRecord) {
		atomic.AddInt64(&processedCount, 1)
		if record.IsAnomaly {
			atomic.AddInt64(&anomalyCount, 1)
		}
		latency := time.Since(record.Sample.Timestamp).Nanoseconds()
		latenciesLock.Lock()
		latencies = append(latencies, latency)
		latenciesLock.Unlock()
	})

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	engine, err := analytics.NewStreamEngine(analytics.EngineConfig{
		Detector: models.DetectorConfig{WindowSize: window, Threshold: threshold},
	}, out, logger)
	if err != nil {
		return err
	}

	simCfg := simulator.DefaultConfig()
	simCfg.Seed = 1

	startTime := time.Now()
	var wg sync.WaitGroup
	for s := 0; s < streams; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			cfg := simCfg
			cfg.Seed += int64(s)
			gen, err := simulator.New(cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return
			}
			name := fmt.Sprintf("stream-%d", s)
			for i := 0; i < perStream; i++ {
				sample := models.Sample{
					Index:     uint64(i),
					Value:     gen.Value(time.Duration(i) * cfg.Interval),
					Timestamp: time.Now(),
				}
				if err := engine.Submit(ctx, name, sample); err != nil {
					fmt.Fprintln(os.Stderr, err)
					return
				}
			}
		}(s)
	}
	wg.Wait()
	engine.Close()

	printResults(time.Since(startTime))
	return nil
}

func printResults(duration time.Duration) {
	total := atomic.LoadInt64(&processedCount)
	anomalies := atomic.LoadInt64(&anomalyCount)

	latenciesLock.Lock()
	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	latenciesLock.Unlock()

	var p50, p95, p99, maxLat time.Duration
	if len(sorted) > 0 {
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})
		p50 = time.Duration(sorted[len(sorted)*50/100])
		p95 = time.Duration(sorted[len(sorted)*95/100])
		p99 = time.Duration(sorted[len(sorted)*99/100])
		maxLat = time.Duration(sorted[len(sorted)-1])
	}

	fmt.Println("==========================================")
	fmt.Println("Throughput Test Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:        %v\n", duration)
	fmt.Printf("Processed:       %d\n", total)
	fmt.Printf("Anomalies:       %d\n", anomalies)
	fmt.Printf("Samples/sec:     %.2f\n", float64(total)/duration.Seconds())
	fmt.Println("\nSubmit-to-emit latency:")
	fmt.Printf("  p50:          %v\n", p50)
	fmt.Printf("  p95:          %v\n", p95)
	fmt.Printf("  p99:          %v\n", p99)
	fmt.Printf("  Max:          %v\n", maxLat)
	fmt.Println("==========================================")
}
