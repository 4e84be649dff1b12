package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/basekick-labs/segment/pkg/lineproto"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

// Metrics holds segment's own counters. A snapshot is itself written as a
// segment_stats line.
type Metrics struct {
	startTime time.Time

	// Encoding
	linesTotal        atomic.Int64
	bytesTotal        atomic.Int64
	encodeErrorsTotal atomic.Int64

	// Sink
	flushesTotal     atomic.Int64
	flushErrorsTotal atomic.Int64
	flushBytesTotal  atomic.Int64

	// Collector
	collectorRunsTotal   atomic.Int64
	collectorErrorsTotal atomic.Int64

	// MessagePack conversion
	convertRowsTotal     atomic.Int64
	convertRowsRejected  atomic.Int64
	convertFieldsDropped atomic.Int64

	// Series keys are tracked by their 64-bit xxhash
	seriesMu sync.Mutex
	series   map[uint64]struct{}

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// New returns an independent metrics instance.
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		series:    make(map[uint64]struct{}),
		logger:    zerolog.Nop(),
	}
}

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// Init initializes the metrics with a logger
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Info().Msg("Metrics collector initialized")
	return m
}

// Encoding Metrics
func (m *Metrics) IncLines(count int64) { m.linesTotal.Add(count) }
func (m *Metrics) IncBytes(bytes int64) { m.bytesTotal.Add(bytes) }
func (m *Metrics) IncEncodeErrors()     { m.encodeErrorsTotal.Add(1) }

// Sink Metrics
func (m *Metrics) IncFlushes()               { m.flushesTotal.Add(1) }
func (m *Metrics) IncFlushErrors()           { m.flushErrorsTotal.Add(1) }
func (m *Metrics) IncFlushBytes(bytes int64) { m.flushBytesTotal.Add(bytes) }

// Collector Metrics
func (m *Metrics) IncCollectorRuns()   { m.collectorRunsTotal.Add(1) }
func (m *Metrics) IncCollectorErrors() { m.collectorErrorsTotal.Add(1) }

// Convert Metrics
func (m *Metrics) IncConvertRows(count int64)    { m.convertRowsTotal.Add(count) }
func (m *Metrics) IncConvertRejected()           { m.convertRowsRejected.Add(1) }
func (m *Metrics) IncConvertDropped(count int64) { m.convertFieldsDropped.Add(count) }

// ObserveSeries records the series key of a written line.
func (m *Metrics) ObserveSeries(key []byte) {
	h := xxhash.Sum64(key)

	m.seriesMu.Lock()
	m.series[h] = struct{}{}
	m.seriesMu.Unlock()
}

// SeriesCardinality returns the number of distinct series observed.
func (m *Metrics) SeriesCardinality() int64 {
	m.seriesMu.Lock()
	defer m.seriesMu.Unlock()
	return int64(len(m.series))
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Timestamp time.Time
	Host      string
	Instance  string

	UptimeSeconds     float64
	Lines             int64
	Bytes             int64
	EncodeErrors      int64
	Flushes           int64
	FlushErrors       int64
	FlushBytes        int64
	CollectorRuns     int64
	CollectorErrors   int64
	ConvertRows       int64
	ConvertRejected   int64
	ConvertDropped    int64
	SeriesCardinality int64
}

var statsSchema = lineproto.NewSchema[Stats]("segment_stats").
	Time(func(s *Stats) time.Duration { return time.Duration(s.Timestamp.UnixNano()) }).
	Tag("host", func(s *Stats) string { return s.Host }).
	Tag("instance", func(s *Stats) string { return s.Instance }).
	Field("uptime_seconds", func(s *Stats) lineproto.Value { return lineproto.Float64(s.UptimeSeconds) }).
	Field("lines", func(s *Stats) lineproto.Value { return lineproto.Int64(s.Lines) }).
	Field("bytes", func(s *Stats) lineproto.Value { return lineproto.Int64(s.Bytes) }).
	Field("encode_errors", func(s *Stats) lineproto.Value { return lineproto.Int64(s.EncodeErrors) }).
	Field("flushes", func(s *Stats) lineproto.Value { return lineproto.Int64(s.Flushes) }).
	Field("flush_errors", func(s *Stats) lineproto.Value { return lineproto.Int64(s.FlushErrors) }).
	Field("flush_bytes", func(s *Stats) lineproto.Value { return lineproto.Int64(s.FlushBytes) }).
	Field("collector_runs", func(s *Stats) lineproto.Value { return lineproto.Int64(s.CollectorRuns) }).
	Field("collector_errors", func(s *Stats) lineproto.Value { return lineproto.Int64(s.CollectorErrors) }).
	Field("convert_rows", func(s *Stats) lineproto.Value { return lineproto.Int64(s.ConvertRows) }).
	Field("convert_rejected", func(s *Stats) lineproto.Value { return lineproto.Int64(s.ConvertRejected) }).
	Field("convert_dropped_fields", func(s *Stats) lineproto.Value { return lineproto.Int64(s.ConvertDropped) }).
	Field("series_cardinality", func(s *Stats) lineproto.Value { return lineproto.Int64(s.SeriesCardinality) }).
	MustBuild()

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot(now time.Time) *Stats {
	uptime := now.Sub(m.startTime).Seconds()
	if uptime < 0 {
		uptime = 0
	}
	return &Stats{
		Timestamp:         now,
		UptimeSeconds:     uptime,
		Lines:             m.linesTotal.Load(),
		Bytes:             m.bytesTotal.Load(),
		EncodeErrors:      m.encodeErrorsTotal.Load(),
		Flushes:           m.flushesTotal.Load(),
		FlushErrors:       m.flushErrorsTotal.Load(),
		FlushBytes:        m.flushBytesTotal.Load(),
		CollectorRuns:     m.collectorRunsTotal.Load(),
		CollectorErrors:   m.collectorErrorsTotal.Load(),
		ConvertRows:       m.convertRowsTotal.Load(),
		ConvertRejected:   m.convertRowsRejected.Load(),
		ConvertDropped:    m.convertFieldsDropped.Load(),
		SeriesCardinality: m.SeriesCardinality(),
	}
}

// Metric returns s as a segment_stats point.
func (s *Stats) Metric() lineproto.Metric {
	return statsSchema.Bind(s)
}
