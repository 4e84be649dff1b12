package lineproto

import (
	"slices"
	"strings"
	"time"
)

type tagSpec[T any] struct {
	name string
	get  func(*T) string
}

type fieldSpec[T any] struct {
	name string
	get  func(*T) Value
}

// SchemaBuilder collects the tag, field and timestamp accessors of a
// measurement type. Names given to Tag and Field are the names written on the
// wire and need not match the Go struct fields.
type SchemaBuilder[T any] struct {
	measurement string
	tags        []tagSpec[T]
	fields      []fieldSpec[T]
	time        func(*T) time.Duration
}

// NewSchema starts a schema for values of type T written under measurement.
func NewSchema[T any](measurement string) *SchemaBuilder[T] {
	return &SchemaBuilder[T]{measurement: measurement}
}

// Tag declares a tag. Non-string attributes are formatted by the accessor.
func (b *SchemaBuilder[T]) Tag(name string, get func(*T) string) *SchemaBuilder[T] {
	b.tags = append(b.tags, tagSpec[T]{name: name, get: get})
	return b
}

// Field declares a field. Fields are written in declaration order.
func (b *SchemaBuilder[T]) Field(name string, get func(*T) Value) *SchemaBuilder[T] {
	b.fields = append(b.fields, fieldSpec[T]{name: name, get: get})
	return b
}

// Time declares the timestamp source. A later call replaces an earlier one.
func (b *SchemaBuilder[T]) Time(get func(*T) time.Duration) *SchemaBuilder[T] {
	b.time = get
	return b
}

// Build validates the declarations and returns the schema. A type without a
// field or a timestamp fails here, before any record of it exists.
func (b *SchemaBuilder[T]) Build() (*Schema[T], error) {
	if b.measurement == "" {
		return nil, &SchemaError{Err: ErrNoMeasurement}
	}
	if len(b.fields) == 0 {
		return nil, &SchemaError{Measurement: b.measurement, Err: ErrNoFields}
	}
	if b.time == nil {
		return nil, &SchemaError{Measurement: b.measurement, Err: ErrNoTime}
	}

	seen := make(map[string]struct{}, len(b.tags)+len(b.fields))
	for _, t := range b.tags {
		if _, dup := seen["t:"+t.name]; dup {
			return nil, &SchemaError{Measurement: b.measurement, Name: t.name, Err: ErrDuplicateName}
		}
		seen["t:"+t.name] = struct{}{}
	}
	for _, f := range b.fields {
		if _, dup := seen["f:"+f.name]; dup {
			return nil, &SchemaError{Measurement: b.measurement, Name: f.name, Err: ErrDuplicateName}
		}
		seen["f:"+f.name] = struct{}{}
	}

	tags := slices.Clone(b.tags)
	slices.SortStableFunc(tags, func(a, b tagSpec[T]) int {
		return strings.Compare(a.name, b.name)
	})

	return &Schema[T]{
		measurement: b.measurement,
		tags:        tags,
		fields:      slices.Clone(b.fields),
		time:        b.time,
	}, nil
}

// MustBuild is like Build but panics on error. It is meant for package-level
// schema variables, where a bad declaration should stop the program at start.
func (b *SchemaBuilder[T]) MustBuild() *Schema[T] {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Schema serializes values of type T. It is immutable and safe for
// concurrent use.
type Schema[T any] struct {
	measurement string
	tags        []tagSpec[T] // sorted by name
	fields      []fieldSpec[T]
	time        func(*T) time.Duration
}

func (s *Schema[T]) Measurement() string { return s.measurement }

// AppendLine appends the line for v to dst without building intermediate
// tag or field slices.
func (s *Schema[T]) AppendLine(dst []byte, v *T) ([]byte, error) {
	dst = append(dst, s.measurement...)
	for _, t := range s.tags {
		dst = appendTag(dst, t.name, t.get(v))
	}

	dst = append(dst, ' ')
	var err error
	for i, f := range s.fields {
		if dst, err = appendField(dst, i, f.name, f.get(v)); err != nil {
			return dst, err
		}
	}

	return appendTimestamp(dst, s.time(v)), nil
}

// Bind adapts v to the Metric interface. v is read on every call, so the
// bound metric reflects later changes to it.
func (s *Schema[T]) Bind(v *T) Metric {
	return boundMetric[T]{schema: s, v: v}
}

type boundMetric[T any] struct {
	schema *Schema[T]
	v      *T
}

func (m boundMetric[T]) Measurement() string { return m.schema.measurement }
func (m boundMetric[T]) Time() time.Duration { return m.schema.time(m.v) }

func (m boundMetric[T]) Tags() []Tag {
	tags := make([]Tag, len(m.schema.tags))
	for i, t := range m.schema.tags {
		tags[i] = Tag{Name: t.name, Value: t.get(m.v)}
	}
	return tags
}

func (m boundMetric[T]) Fields() []Field {
	fields := make([]Field, len(m.schema.fields))
	for i, f := range m.schema.fields {
		fields[i] = Field{Name: f.name, Value: f.get(m.v)}
	}
	return fields
}

func (m boundMetric[T]) AppendLine(dst []byte) ([]byte, error) {
	return m.schema.AppendLine(dst, m.v)
}
