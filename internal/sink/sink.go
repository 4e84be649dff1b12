// Package sink batches serialized lines and writes them, newline-terminated,
// to a file or stdout, optionally compressed.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/basekick-labs/segment/internal/metrics"
	"github.com/basekick-labs/segment/pkg/lineproto"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"
)

// ErrClosed is returned by Write and Flush after Close.
var ErrClosed = errors.New("sink closed")

// Config holds configuration for creating a sink
type Config struct {
	Path          string        // "-" or "" for stdout
	Compression   string        // none, gzip, zstd
	BufferSize    int           // Flush once this many bytes are buffered
	FlushInterval time.Duration // Periodic flush; 0 disables
	TrackSeries   bool          // Record series cardinality in Metrics
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// flushWriteCloser is implemented by both gzip.Writer and zstd.Encoder.
type flushWriteCloser interface {
	io.WriteCloser
	Flush() error
}

// Sink is safe for concurrent use. Each Write serializes into the shared
// batch buffer under the sink's lock.
type Sink struct {
	mu         sync.Mutex
	out        io.Writer
	compressor flushWriteCloser
	file       *os.File
	buf        *bytebufferpool.ByteBuffer
	seriesKey  []byte
	limit      int
	closed     bool

	trackSeries bool
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

var batchPool bytebufferpool.Pool

// New opens the configured output and returns a sink writing to it.
func New(cfg *Config) (*Sink, error) {
	if cfg.Path == "" || cfg.Path == "-" {
		return NewWriter(os.Stdout, cfg)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output %s: %w", cfg.Path, err)
	}

	s, err := NewWriter(f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.file = f
	return s, nil
}

// NewWriter returns a sink writing to w. w is not closed by Close.
func NewWriter(w io.Writer, cfg *Config) (*Sink, error) {
	s := &Sink{
		out:         w,
		buf:         batchPool.Get(),
		limit:       cfg.BufferSize,
		trackSeries: cfg.TrackSeries,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With().Str("component", "sink").Logger(),
		stopCh:      make(chan struct{}),
	}
	if s.metrics == nil {
		s.metrics = metrics.Get()
	}
	if s.limit <= 0 {
		s.limit = 64 * 1024
	}

	switch cfg.Compression {
	case "", "none":
	case "gzip":
		gw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		s.compressor = gw
	case "zstd":
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		s.compressor = zw
	default:
		return nil, fmt.Errorf("unsupported compression: %s", cfg.Compression)
	}
	if s.compressor != nil {
		s.out = s.compressor
	}

	if cfg.FlushInterval > 0 {
		s.wg.Add(1)
		go s.flushLoop(cfg.FlushInterval)
	}

	s.logger.Debug().
		Str("path", cfg.Path).
		Str("compression", cfg.Compression).
		Int("buffer_size", s.limit).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Sink initialized")

	return s, nil
}

// Write serializes m into the batch. A record that fails to serialize
// leaves the batch as it was.
func (s *Sink) Write(m lineproto.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	start := len(s.buf.B)
	b, err := m.AppendLine(s.buf.B)
	if err != nil {
		s.buf.B = s.buf.B[:start]
		s.metrics.IncEncodeErrors()
		return fmt.Errorf("encode %s: %w", m.Measurement(), err)
	}
	s.buf.B = append(b, '\n')

	s.metrics.IncLines(1)
	s.metrics.IncBytes(int64(len(s.buf.B) - start))
	if s.trackSeries {
		s.seriesKey = lineproto.AppendSeriesKey(s.seriesKey[:0], m)
		s.metrics.ObserveSeries(s.seriesKey)
	}

	if len(s.buf.B) >= s.limit {
		return s.flushLocked()
	}
	return nil
}

// Flush writes out buffered lines.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.flushLocked()
}

func (s *Sink) flushLocked() error {
	if len(s.buf.B) == 0 {
		return nil
	}

	n := len(s.buf.B)
	_, err := s.out.Write(s.buf.B)
	s.buf.Reset()
	if err == nil && s.compressor != nil {
		err = s.compressor.Flush()
	}
	if err != nil {
		s.metrics.IncFlushErrors()
		return fmt.Errorf("flush: %w", err)
	}

	s.metrics.IncFlushes()
	s.metrics.IncFlushBytes(int64(n))
	return nil
}

func (s *Sink) flushLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil && !errors.Is(err, ErrClosed) {
				s.logger.Error().Err(err).Msg("Periodic flush failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close flushes remaining lines and releases the output.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	err := s.flushLocked()
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	if s.compressor != nil {
		if cerr := s.compressor.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close compressor: %w", cerr)
		}
	}
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}

	batchPool.Put(s.buf)
	s.buf = nil

	s.logger.Debug().Msg("Sink closed")
	return err
}
