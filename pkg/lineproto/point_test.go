package lineproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoint(t *testing.T) {
	tags := []Tag{{"host", "localhost"}, {"cpu", "CPU0"}}
	fields := []Field{{"value", Float64(42)}}

	p, err := NewPoint("cpu", tags, fields, 0)
	require.NoError(t, err)

	assert.Equal(t, "cpu", p.Measurement())
	assert.Equal(t, []Tag{{"cpu", "CPU0"}, {"host", "localhost"}}, p.Tags())
	// Input slices are copied, not sorted in place.
	assert.Equal(t, "host", tags[0].Name)

	line, err := p.AppendLine(nil)
	require.NoError(t, err)
	assert.Equal(t, "cpu,cpu=CPU0,host=localhost value=42.0 0", string(line))

	v, ok := p.Tag("host")
	assert.True(t, ok)
	assert.Equal(t, "localhost", v)
	_, ok = p.Tag("region")
	assert.False(t, ok)
}

func TestNewPoint_Errors(t *testing.T) {
	_, err := NewPoint("cpu", nil, nil, 0)
	assert.ErrorIs(t, err, ErrNoFields)

	_, err = NewPoint("", nil, []Field{{"v", Int64(1)}}, 0)
	assert.ErrorIs(t, err, ErrNoMeasurement)
}

func TestPoint_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		tags   []Tag
		fields []Field
		want   string
	}{
		{"no tags", nil, []Field{{"value", Float64(42.0)}}, "cpu value=42.0 0"},
		{"sorted tags", []Tag{{"cpu", "CPU0"}, {"host", "localhost"}}, []Field{{"value", Float64(42.0)}}, "cpu,cpu=CPU0,host=localhost value=42.0 0"},
		{"text with newline", nil, []Field{{"value", String("x\ny")}}, `cpu value="x\ny" 0`},
		{"tag newline, integer field", []Tag{{"host", "x\ny"}}, []Field{{"value", Int64(42)}}, `cpu,host=x\ny value=42i 0`},
		{"empty tag value", []Tag{{"host", ""}}, []Field{{"value", Int32(1)}}, "cpu,host= value=1i 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPoint("cpu", tt.tags, tt.fields, 0)
			require.NoError(t, err)
			line, err := Marshal(p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(line))
		})
	}
}

func TestPoint_NegativeTimestamp(t *testing.T) {
	p, err := NewPoint("m", nil, []Field{{"v", Uint64(1)}}, -1500)
	require.NoError(t, err)
	line, err := Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, "m v=1i -1500", string(line))
}
