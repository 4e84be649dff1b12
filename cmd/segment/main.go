package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/basekick-labs/segment/internal/collector"
	"github.com/basekick-labs/segment/internal/config"
	"github.com/basekick-labs/segment/internal/convert"
	"github.com/basekick-labs/segment/internal/logger"
	"github.com/basekick-labs/segment/internal/metrics"
	"github.com/basekick-labs/segment/internal/shutdown"
	"github.com/basekick-labs/segment/internal/sink"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time
var Version = "dev"

const usage = `usage: segment <command> [flags]

commands:
  run                      sample the Go runtime on a schedule and write line protocol
  convert [flags] <files>  convert msgpack payloads to line protocol ("-" reads stdin)
  version                  print the version
`

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		os.Exit(runCollector(args))
	case "convert":
		os.Exit(runConvert(args))
	case "version":
		fmt.Println(Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func newSink(cfg *config.Config, m *metrics.Metrics) (*sink.Sink, error) {
	return sink.New(&sink.Config{
		Path:          cfg.Output.Path,
		Compression:   cfg.Output.Compression,
		BufferSize:    int(cfg.Output.BufferSize),
		FlushInterval: time.Duration(cfg.Output.FlushIntervalMS) * time.Millisecond,
		TrackSeries:   cfg.Collector.SelfStats,
		Metrics:       m,
		Logger:        logger.Get("sink"),
	})
}

func runCollector(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	once := fs.Bool("once", false, "Collect a single sample and exit")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to parse flags: %v\n", err)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	log.Info().Str("version", Version).Msg("Starting segment collector")

	m := metrics.Init(logger.Get("metrics"))

	out, err := newSink(cfg, m)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open output")
		return 1
	}

	col, err := collector.New(&collector.Config{
		Schedule:        cfg.Collector.Schedule,
		Measurement:     cfg.Collector.Measurement,
		Host:            cfg.Collector.Host,
		IncludeMemStats: cfg.Collector.IncludeMemStats,
		SelfStats:       cfg.Collector.SelfStats,
		Writer:          out,
		Metrics:         m,
		Logger:          logger.Get("collector"),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create collector")
		out.Close()
		return 1
	}

	if *once {
		err := col.Collect()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			log.Error().Err(err).Msg("Collection failed")
			return 1
		}
		return 0
	}

	coordinator := shutdown.New(time.Duration(cfg.Shutdown.TimeoutSeconds)*time.Second, logger.Get("shutdown"))
	coordinator.Register("collector", col, shutdown.PriorityCollector)
	if cfg.Collector.SelfStats {
		coordinator.RegisterHook("final-stats", func(ctx context.Context) error {
			stats := m.Snapshot(time.Now())
			stats.Host = col.Host()
			stats.Instance = col.Instance()
			return out.Write(stats.Metric())
		}, shutdown.PriorityStats)
	}
	coordinator.Register("sink", out, shutdown.PrioritySink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return col.Run(gctx)
	})
	g.Go(func() error {
		if sig := coordinator.WaitForSignal(gctx); sig != nil {
			log.Info().Str("signal", sig.String()).Msg("Initiating graceful shutdown...")
		}
		cancel()
		return nil
	})

	log.Info().
		Str("schedule", cfg.Collector.Schedule).
		Str("output", cfg.Output.Path).
		Msg("segment is ready")

	runErr := g.Wait()
	if runErr != nil {
		log.Error().Err(runErr).Msg("Collector stopped with error")
	}

	if err := coordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
		return 1
	}
	if runErr != nil {
		return 1
	}

	log.Info().Msg("segment shutdown complete")
	return 0
}

func runConvert(args []string) int {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	output := fs.String("o", "", "Output path (default: output.path from config)")
	compression := fs.String("compression", "", "Output compression: none, gzip, zstd")
	workers := fs.Int("workers", 0, "Files converted in parallel (default: convert.workers from config)")
	measurement := fs.String("measurement", "", "Measurement for rows without 'm'")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to parse flags: %v\n", err)
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "error: at least one input file is required")
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if *output != "" {
		cfg.Output.Path = *output
	}
	if *compression != "" {
		cfg.Output.Compression = *compression
	}
	if *workers > 0 {
		cfg.Convert.Workers = *workers
	}
	if *measurement != "" {
		cfg.Convert.DefaultMeasurement = *measurement
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	m := metrics.Init(logger.Get("metrics"))

	out, err := newSink(cfg, m)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open output")
		return 1
	}

	conv := convert.New(&convert.Config{
		DefaultMeasurement: cfg.Convert.DefaultMeasurement,
		Workers:            cfg.Convert.Workers,
		Metrics:            m,
		Logger:             logger.Get("convert"),
	})

	coordinator := shutdown.New(time.Duration(cfg.Shutdown.TimeoutSeconds)*time.Second, logger.Get("shutdown"))
	coordinator.Register("sink", out, shutdown.PrioritySink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if sig := coordinator.WaitForSignal(ctx); sig != nil {
			log.Warn().Str("signal", sig.String()).Msg("Conversion interrupted")
			cancel()
		}
	}()

	res, convErr := conv.ConvertFiles(ctx, fs.Args(), out)
	if convErr != nil {
		log.Error().Err(convErr).Msg("Conversion failed")
	}

	if err := coordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Failed to flush output")
		return 1
	}
	if convErr != nil {
		return 1
	}
	if res.Rejected > 0 {
		log.Warn().Int("rejected", res.Rejected).Msg("Some rows were rejected")
	}
	return 0
}
