package lineproto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_Encode(t *testing.T) {
	var out bytes.Buffer
	enc := NewEncoder(&out)

	require.NoError(t, enc.Encode(minimalSchema.Bind(&minimal{value: 1})))
	require.NoError(t, enc.Encode(multiTagSchema.Bind(&multiTag{host: "h", cpu: "c", value: 2, timestamp: 10})))

	assert.Equal(t, "cpu value=1.0 0\ncpu,cpu=c,host=h value=2.0 10\n", out.String())
}

func TestEncoder_FailedRecordWritesNothing(t *testing.T) {
	var out bytes.Buffer
	enc := NewEncoder(&out)

	err := enc.Encode(unsortedMetric{})
	require.ErrorIs(t, err, ErrNoFields)
	assert.Zero(t, out.Len())

	require.NoError(t, enc.Encode(minimalSchema.Bind(&minimal{value: 3})))
	assert.Equal(t, "cpu value=3.0 0\n", out.String())
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestEncoder_WriteErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	enc := NewEncoder(failingWriter{err: boom})
	assert.ErrorIs(t, enc.Encode(minimalSchema.Bind(&minimal{})), boom)
}

func TestMarshal_ReturnsIndependentCopy(t *testing.T) {
	a, err := Marshal(minimalSchema.Bind(&minimal{value: 1}))
	require.NoError(t, err)
	b, err := Marshal(minimalSchema.Bind(&minimal{value: 2}))
	require.NoError(t, err)

	assert.Equal(t, "cpu value=1.0 0", string(a))
	assert.Equal(t, "cpu value=2.0 0", string(b))
}
