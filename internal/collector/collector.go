// Package collector samples Go runtime state on a schedule and writes each
// sample as one line protocol point.
package collector

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/basekick-labs/segment/internal/metrics"
	"github.com/basekick-labs/segment/pkg/lineproto"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Writer receives the points produced by a collection cycle.
type Writer interface {
	Write(m lineproto.Metric) error
}

// Sample is one observation of the runtime. It lives for a single cycle.
type Sample struct {
	Timestamp time.Time
	Host      string
	Instance  string
	GoVersion string

	Goroutines int64
	NumCPU     int32
	Mem        runtime.MemStats
}

// Config holds configuration for creating a collector
type Config struct {
	Schedule        string // Cron spec, e.g. "@every 10s" or "*/1 * * * *"
	Measurement     string
	Host            string // Defaults to os.Hostname
	Instance        string // Defaults to a random UUID
	IncludeMemStats bool
	SelfStats       bool
	Writer          Writer
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
}

// Collector runs collection cycles on a cron schedule.
type Collector struct {
	schema          *lineproto.Schema[Sample]
	writer          Writer
	schedule        string
	host            string
	instance        string
	includeMemStats bool
	selfStats       bool
	now             func() time.Time

	cron    *cron.Cron
	running bool
	mu      sync.Mutex

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewSchema returns the schema for runtime samples. Heap and GC fields are
// only declared when withMemStats is set.
func NewSchema(measurement string, withMemStats bool) (*lineproto.Schema[Sample], error) {
	b := lineproto.NewSchema[Sample](measurement).
		Time(func(s *Sample) time.Duration { return time.Duration(s.Timestamp.UnixNano()) }).
		Tag("host", func(s *Sample) string { return s.Host }).
		Tag("instance", func(s *Sample) string { return s.Instance }).
		Tag("go_version", func(s *Sample) string { return s.GoVersion }).
		Field("goroutines", func(s *Sample) lineproto.Value { return lineproto.Int64(s.Goroutines) }).
		Field("num_cpu", func(s *Sample) lineproto.Value { return lineproto.Int32(s.NumCPU) })

	if withMemStats {
		b.Field("heap_alloc", func(s *Sample) lineproto.Value { return lineproto.Uint64(s.Mem.HeapAlloc) }).
			Field("heap_objects", func(s *Sample) lineproto.Value { return lineproto.Uint64(s.Mem.HeapObjects) }).
			Field("sys", func(s *Sample) lineproto.Value { return lineproto.Uint64(s.Mem.Sys) }).
			Field("next_gc", func(s *Sample) lineproto.Value { return lineproto.Uint64(s.Mem.NextGC) }).
			Field("gc_cycles", func(s *Sample) lineproto.Value { return lineproto.Uint32(s.Mem.NumGC) }).
			Field("gc_pause_total_ns", func(s *Sample) lineproto.Value { return lineproto.Uint64(s.Mem.PauseTotalNs) }).
			Field("gc_cpu_fraction", func(s *Sample) lineproto.Value { return lineproto.Float64(s.Mem.GCCPUFraction) })
	}

	return b.Build()
}

// New creates a collector. The schedule and schema are validated here.
func New(cfg *Config) (*Collector, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("collector requires a writer")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	schema, err := NewSchema(cfg.Measurement, cfg.IncludeMemStats)
	if err != nil {
		return nil, err
	}

	host := cfg.Host
	if host == "" {
		if h, err := os.Hostname(); err == nil {
			host = h
		} else {
			host = "unknown"
		}
	}
	instance := cfg.Instance
	if instance == "" {
		instance = uuid.New().String()
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.Get()
	}

	c := &Collector{
		schema:          schema,
		writer:          cfg.Writer,
		schedule:        cfg.Schedule,
		host:            host,
		instance:        instance,
		includeMemStats: cfg.IncludeMemStats,
		selfStats:       cfg.SelfStats,
		now:             time.Now,
		metrics:         m,
		logger:          cfg.Logger.With().Str("component", "collector").Logger(),
	}

	c.logger.Info().
		Str("schedule", cfg.Schedule).
		Str("measurement", cfg.Measurement).
		Str("host", host).
		Str("instance", instance).
		Msg("Collector initialized")

	return c, nil
}

// Host returns the value of the host tag.
func (c *Collector) Host() string { return c.host }

// Instance returns the value of the instance tag.
func (c *Collector) Instance() string { return c.instance }

// Collect runs one collection cycle.
func (c *Collector) Collect() error {
	c.metrics.IncCollectorRuns()
	now := c.now()

	sample := Sample{
		Timestamp:  now,
		Host:       c.host,
		Instance:   c.instance,
		GoVersion:  runtime.Version(),
		Goroutines: int64(runtime.NumGoroutine()),
		NumCPU:     int32(runtime.NumCPU()),
	}
	if c.includeMemStats {
		runtime.ReadMemStats(&sample.Mem)
	}

	if err := c.writer.Write(c.schema.Bind(&sample)); err != nil {
		c.metrics.IncCollectorErrors()
		return fmt.Errorf("write runtime sample: %w", err)
	}

	if c.selfStats {
		stats := c.metrics.Snapshot(now)
		stats.Host = c.host
		stats.Instance = c.instance
		if err := c.writer.Write(stats.Metric()); err != nil {
			c.metrics.IncCollectorErrors()
			return fmt.Errorf("write self stats: %w", err)
		}
	}
	return nil
}

// Start schedules collection cycles.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warn().Msg("Collector already running")
		return nil
	}

	c.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	_, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.Collect(); err != nil {
			c.logger.Error().Err(err).Msg("Collection cycle failed")
		}
	})
	if err != nil {
		return err
	}

	c.cron.Start()
	c.running = true

	c.logger.Info().
		Str("schedule", c.schedule).
		Time("next_run", c.nextRun()).
		Msg("Collector started")

	return nil
}

// Stop stops scheduling and waits for a running cycle to finish.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	ctx := c.cron.Stop()
	<-ctx.Done()

	c.running = false
	c.logger.Info().Msg("Collector stopped")
}

// Close implements shutdown.Shutdownable.
func (c *Collector) Close() error {
	c.Stop()
	return nil
}

// Run starts the collector and blocks until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	c.Stop()
	return nil
}

// IsRunning returns whether the collector is scheduled
func (c *Collector) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Collector) nextRun() time.Time {
	schedule, err := cron.ParseStandard(c.schedule)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(c.now())
}
