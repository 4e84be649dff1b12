// Package lineproto serializes typed measurement records into InfluxDB Line Protocol.
//
// Line Protocol Format:
//
//	measurement[,tag_key=tag_value...] field_key=field_value[,field_key=field_value...] timestamp
//
// Examples:
//
//	cpu,cpu=CPU0,host=localhost value=42.0 0
//	http_requests,method=GET count=1i 1609459200000000000
//	event message="disk full" 1609459200000000000
//
// Tags are written sorted by name, fields in the order the record lists them,
// and the timestamp as nanoseconds since the Unix epoch. Every writer appends
// into a caller-owned []byte; no trailing newline is written except by Encoder.
package lineproto

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Tag is an indexed, string-valued key/value pair.
type Tag struct {
	Name  string
	Value string
}

// Field is a typed key/value pair carrying an observed value.
type Field struct {
	Name  string
	Value Value
}

// Metric is a single point in a measurement.
//
// Tags must be returned sorted by name; AppendLine sorts a copy when they are
// not. Fields are written in the order returned and at least one is required.
type Metric interface {
	Measurement() string
	// Time is the point's timestamp as a duration since the Unix epoch.
	Time() time.Duration
	Tags() []Tag
	Fields() []Field
	// AppendLine appends the point's line to dst and returns the extended buffer.
	AppendLine(dst []byte) ([]byte, error)
}

// AppendLine appends the line for m to dst using only m's accessors.
// On error the returned slice may hold a partial line past len(dst); callers
// truncate it.
func AppendLine(dst []byte, m Metric) ([]byte, error) {
	fields := m.Fields()
	if len(fields) == 0 {
		return dst, ErrNoFields
	}

	dst = append(dst, m.Measurement()...)
	for _, t := range sortedTags(m.Tags()) {
		dst = appendTag(dst, t.Name, t.Value)
	}

	dst = append(dst, ' ')
	var err error
	for i, f := range fields {
		if dst, err = appendField(dst, i, f.Name, f.Value); err != nil {
			return dst, err
		}
	}

	return appendTimestamp(dst, m.Time()), nil
}

// AppendSeriesKey appends the measurement and sorted tag set of m, which
// together identify the series the point belongs to.
func AppendSeriesKey(dst []byte, m Metric) []byte {
	dst = append(dst, m.Measurement()...)
	for _, t := range sortedTags(m.Tags()) {
		dst = appendTag(dst, t.Name, t.Value)
	}
	return dst
}

func appendTag(dst []byte, name, value string) []byte {
	dst = append(dst, ',')
	dst = append(dst, name...)
	dst = append(dst, '=')
	return AppendEscapedTag(dst, value)
}

func appendField(dst []byte, i int, name string, v Value) ([]byte, error) {
	if v.kind == KindInvalid {
		return dst, fmt.Errorf("field %q: %w", name, ErrInvalidValue)
	}
	if i > 0 {
		dst = append(dst, ',')
	}
	dst = append(dst, name...)
	dst = append(dst, '=')
	return v.AppendTo(dst), nil
}

func appendTimestamp(dst []byte, ts time.Duration) []byte {
	dst = append(dst, ' ')
	return strconv.AppendInt(dst, int64(ts), 10)
}

func compareTags(a, b Tag) int {
	return strings.Compare(a.Name, b.Name)
}

// sortedTags returns tags unchanged when already in order, otherwise a sorted copy.
func sortedTags(tags []Tag) []Tag {
	if slices.IsSortedFunc(tags, compareTags) {
		return tags
	}
	tags = slices.Clone(tags)
	slices.SortStableFunc(tags, compareTags)
	return tags
}
