// Package convert turns MessagePack point payloads into line protocol.
//
// A payload is a single row map, a {"batch": [...]} map, or an array of row
// maps. A row looks like
//
//	{m: "cpu", t: 1633024800000, h: "server01", tags: {...}, fields: {...}}
//
// Field values outside the line protocol value set (booleans, nil, nested
// maps and arrays) are dropped. Fields are written in name order because
// msgpack maps carry no declaration order.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"github.com/basekick-labs/segment/internal/metrics"
	"github.com/basekick-labs/segment/pkg/lineproto"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

// Writer receives converted points.
type Writer interface {
	Write(m lineproto.Metric) error
}

// Config holds configuration for creating a converter
type Config struct {
	DefaultMeasurement string // Used for rows without "m"
	Workers            int    // Files converted concurrently by ConvertFiles
	Metrics            *metrics.Metrics
	Logger             zerolog.Logger
}

// Converter decodes msgpack payloads into points.
type Converter struct {
	defaultMeasurement string
	workers            int
	now                func() time.Time
	metrics            *metrics.Metrics
	logger             zerolog.Logger
}

// Result summarizes one conversion.
type Result struct {
	Rows     int
	Rejected int
	Dropped  int
}

func (r *Result) add(o Result) {
	r.Rows += o.Rows
	r.Rejected += o.Rejected
	r.Dropped += o.Dropped
}

// New creates a converter.
func New(cfg *Config) *Converter {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Get()
	}
	return &Converter{
		defaultMeasurement: cfg.DefaultMeasurement,
		workers:            workers,
		now:                time.Now,
		metrics:            m,
		logger:             cfg.Logger.With().Str("component", "convert").Logger(),
	}
}

// Decode converts one msgpack payload. Rows that fail to convert are logged,
// counted and skipped; an error is returned only when the payload itself is
// unreadable.
func (c *Converter) Decode(data []byte) ([]*lineproto.Point, Result, error) {
	// Decode to a generic value first: clients send both map and array encodings.
	var raw interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, Result{}, fmt.Errorf("failed to unmarshal msgpack: %w", err)
	}
	return c.decodePayload(raw)
}

func (c *Converter) decodePayload(raw interface{}) ([]*lineproto.Point, Result, error) {
	var (
		points []*lineproto.Point
		res    Result
	)

	collect := func(item interface{}) {
		row, ok := item.(map[string]interface{})
		if !ok {
			c.logger.Warn().Str("type", fmt.Sprintf("%T", item)).Msg("Skipping unknown array item type")
			res.Rejected++
			c.metrics.IncConvertRejected()
			return
		}
		p, dropped, err := c.decodeRow(row)
		res.Dropped += dropped
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to decode row")
			res.Rejected++
			c.metrics.IncConvertRejected()
			return
		}
		points = append(points, p)
		res.Rows++
	}

	switch payload := raw.(type) {
	case map[string]interface{}:
		if batch, ok := payload["batch"]; ok {
			items, ok := batch.([]interface{})
			if !ok {
				return nil, Result{}, fmt.Errorf("batch must be an array, got %T", batch)
			}
			for _, item := range items {
				collect(item)
			}
		} else {
			collect(payload)
		}

	case []interface{}:
		for _, item := range payload {
			collect(item)
		}

	default:
		return nil, Result{}, fmt.Errorf("unsupported msgpack payload type: %T", raw)
	}

	c.metrics.IncConvertRows(int64(res.Rows))
	c.metrics.IncConvertDropped(int64(res.Dropped))
	return points, res, nil
}

// decodeRow converts a single row map. It also returns the number of
// field values that were dropped.
func (c *Converter) decodeRow(row map[string]interface{}) (*lineproto.Point, int, error) {
	measurement, err := c.extractMeasurement(row["m"])
	if err != nil {
		return nil, 0, err
	}

	if row["t"] == nil {
		c.logger.Debug().Str("measurement", measurement).Msg("Row missing timestamp, using current time")
	}
	ts, err := c.extractTimestamp(row["t"])
	if err != nil {
		return nil, 0, err
	}

	var raw map[string]interface{}
	switch {
	case row["fields"] != nil:
		m, ok := row["fields"].(map[string]interface{})
		if !ok {
			return nil, 0, fmt.Errorf("fields must be a map, got %T", row["fields"])
		}
		raw = m
	case row["f"] != nil:
		raw = extractCompactFields(row["f"])
	default:
		return nil, 0, fmt.Errorf("missing required field 'fields' or 'f': %w", lineproto.ErrNoFields)
	}

	fields, dropped := c.convertFields(measurement, raw)
	if len(fields) == 0 {
		return nil, dropped, fmt.Errorf("measurement %q: %w", measurement, lineproto.ErrNoFields)
	}

	tags := c.convertTags(row["tags"], row["h"])

	p, err := lineproto.NewPoint(measurement, tags, fields, ts)
	if err != nil {
		return nil, dropped, err
	}
	return p, dropped, nil
}

func (c *Converter) extractMeasurement(m interface{}) (string, error) {
	switch v := m.(type) {
	case nil:
		if c.defaultMeasurement != "" {
			return c.defaultMeasurement, nil
		}
		return "", fmt.Errorf("missing required field 'm': %w", lineproto.ErrNoMeasurement)
	case string:
		if v == "" {
			return "", fmt.Errorf("empty field 'm': %w", lineproto.ErrNoMeasurement)
		}
		s, _ := SanitizeUTF8(v)
		return s, nil
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("measurement_%v", v), nil
	default:
		return "", fmt.Errorf("invalid measurement type: %T", m)
	}
}

// extractTimestamp converts t to nanoseconds since the epoch. The unit is
// detected from the magnitude: seconds, milliseconds, microseconds, then
// nanoseconds. Values whose nanosecond form does not fit in int64 are rejected.
func (c *Converter) extractTimestamp(t interface{}) (time.Duration, error) {
	if t == nil {
		return time.Duration(c.now().UnixNano()), nil
	}

	ts, ok := toInt64(t)
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %v (%T)", t, t)
	}

	mag := uint64(ts)
	if ts < 0 {
		mag = uint64(-(ts + 1)) + 1
	}

	var unit int64
	switch {
	case mag < 1e10:
		unit = int64(time.Second)
	case mag < 1e13:
		unit = int64(time.Millisecond)
	case mag < 1e16:
		unit = int64(time.Microsecond)
	default:
		unit = 1
	}

	if ts > math.MaxInt64/unit || ts < math.MinInt64/unit {
		return 0, fmt.Errorf("timestamp %d out of range", ts)
	}
	return time.Duration(ts * unit), nil
}

// convertTags stringifies tag values. A non-empty h becomes the host tag and
// replaces any host in tags.
func (c *Converter) convertTags(rawTags, h interface{}) []lineproto.Tag {
	m, _ := rawTags.(map[string]interface{})
	tags := make([]lineproto.Tag, 0, len(m)+1)

	host := extractHost(h)
	for k, v := range m {
		if host != "" && k == "host" {
			continue
		}
		var s string
		switch tv := v.(type) {
		case nil:
			continue
		case string:
			s = tv
		default:
			s = fmt.Sprintf("%v", tv)
		}
		name, _ := SanitizeUTF8(k)
		s, _ = SanitizeUTF8(s)
		tags = append(tags, lineproto.Tag{Name: name, Value: s})
	}
	if host != "" {
		tags = append(tags, lineproto.Tag{Name: "host", Value: host})
	}
	return tags
}

func (c *Converter) convertFields(measurement string, raw map[string]interface{}) ([]lineproto.Field, int) {
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	slices.Sort(names)

	fields := make([]lineproto.Field, 0, len(names))
	dropped, sanitized := 0, 0
	for _, name := range names {
		v, ok := toValue(raw[name])
		if !ok {
			dropped++
			continue
		}
		if v.Kind() == lineproto.KindString {
			if s, modified := SanitizeUTF8(v.Str()); modified {
				v = lineproto.String(s)
				sanitized++
			}
		}
		name, _ = SanitizeUTF8(name)
		fields = append(fields, lineproto.Field{Name: name, Value: v})
	}

	if sanitized > 0 {
		c.logger.Warn().
			Str("measurement", measurement).
			Int("sanitized_fields", sanitized).
			Msg("Sanitized non-UTF8 characters in string fields")
	}
	if dropped > 0 {
		c.logger.Debug().
			Str("measurement", measurement).
			Int("dropped_fields", dropped).
			Msg("Dropped unsupported field values")
	}
	return fields, dropped
}

// toValue maps a decoded msgpack value onto the line protocol value set.
// Signed integers widen to int64 and unsigned to uint64.
func toValue(v interface{}) (lineproto.Value, bool) {
	switch x := v.(type) {
	case string:
		return lineproto.String(x), true
	case int8:
		return lineproto.Int64(int64(x)), true
	case int16:
		return lineproto.Int64(int64(x)), true
	case int32:
		return lineproto.Int64(int64(x)), true
	case int64:
		return lineproto.Int64(x), true
	case int:
		return lineproto.Int64(int64(x)), true
	case uint8:
		return lineproto.Uint64(uint64(x)), true
	case uint16:
		return lineproto.Uint64(uint64(x)), true
	case uint32:
		return lineproto.Uint64(uint64(x)), true
	case uint64:
		return lineproto.Uint64(x), true
	case uint:
		return lineproto.Uint64(uint64(x)), true
	case float32:
		return lineproto.Float32(x), true
	case float64:
		return lineproto.Float64(x), true
	default:
		return lineproto.Value{}, false
	}
}

// toInt64 reports false for values that are not numbers or do not fit in
// int64, including NaN and infinities.
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float64:
		return floatToInt64(val)
	case float32:
		return floatToInt64(float64(val))
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	// -2^63 is exact in float64; 2^63 is the first value past MaxInt64.
	if math.IsNaN(f) || f < float64(math.MinInt64) || f >= float64(math.MaxInt64) {
		return 0, false
	}
	return int64(f), true
}

func extractHost(h interface{}) string {
	switch v := h.(type) {
	case string:
		s, _ := SanitizeUTF8(v)
		return s
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("host_%v", v)
	default:
		return ""
	}
}

// extractCompactFields names positional values field_0, field_1, ...
func extractCompactFields(f interface{}) map[string]interface{} {
	arr, ok := f.([]interface{})
	if !ok {
		return nil
	}
	fields := make(map[string]interface{}, len(arr))
	for i, val := range arr {
		fields[fmt.Sprintf("field_%d", i)] = val
	}
	return fields
}

// Convert reads a stream of concatenated msgpack payloads from r and writes
// every converted point to w.
func (c *Converter) Convert(ctx context.Context, r io.Reader, w Writer) (Result, error) {
	dec := msgpack.NewDecoder(r)
	var total Result

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		raw, err := dec.DecodeInterface()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("failed to unmarshal msgpack: %w", err)
		}

		points, res, err := c.decodePayload(raw)
		if err != nil {
			return total, err
		}
		total.add(res)

		for _, p := range points {
			if err := w.Write(p); err != nil {
				return total, fmt.Errorf("write %s: %w", p.Measurement(), err)
			}
		}
	}
}

// ConvertFiles converts each file with up to Workers files in flight. The
// first error cancels the remaining files.
func (c *Converter) ConvertFiles(ctx context.Context, paths []string, w Writer) (Result, error) {
	results := make([]Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := c.convertFile(gctx, path, w)
			results[i] = res
			return err
		})
	}

	err := g.Wait()

	var total Result
	for _, r := range results {
		total.add(r)
	}

	c.logger.Info().
		Int("files", len(paths)).
		Int("rows", total.Rows).
		Int("rejected", total.Rejected).
		Int("dropped_fields", total.Dropped).
		Msg("Conversion finished")

	return total, err
}

func (c *Converter) convertFile(ctx context.Context, path string, w Writer) (Result, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return Result{}, err
		}
		defer f.Close()
		r = f
	}

	res, err := c.Convert(ctx, r, w)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	c.logger.Debug().Str("file", path).Int("rows", res.Rows).Msg("File converted")
	return res, nil
}
