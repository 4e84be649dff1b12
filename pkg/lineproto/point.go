package lineproto

import (
	"slices"
	"time"
)

// Point is a general-purpose Metric for records whose shape is only known at
// runtime. Tags are sorted once when the point is created.
type Point struct {
	measurement string
	tags        []Tag
	fields      []Field
	ts          time.Duration
}

// NewPoint creates a point. The tag and field slices are copied.
func NewPoint(measurement string, tags []Tag, fields []Field, ts time.Duration) (*Point, error) {
	if measurement == "" {
		return nil, ErrNoMeasurement
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	sorted := slices.Clone(tags)
	slices.SortStableFunc(sorted, compareTags)

	return &Point{
		measurement: measurement,
		tags:        sorted,
		fields:      slices.Clone(fields),
		ts:          ts,
	}, nil
}

func (p *Point) Measurement() string { return p.measurement }
func (p *Point) Time() time.Duration { return p.ts }

// Tags returns the point's tags sorted by name. The slice must not be modified.
func (p *Point) Tags() []Tag { return p.tags }

// Fields returns the point's fields in declaration order. The slice must not be modified.
func (p *Point) Fields() []Field { return p.fields }

func (p *Point) AppendLine(dst []byte) ([]byte, error) {
	return AppendLine(dst, p)
}

// Tag returns the value of the named tag.
func (p *Point) Tag(name string) (string, bool) {
	i, ok := slices.BinarySearchFunc(p.tags, name, func(t Tag, name string) int {
		return compareTags(t, Tag{Name: name})
	})
	if !ok {
		return "", false
	}
	return p.tags[i].Value, true
}
