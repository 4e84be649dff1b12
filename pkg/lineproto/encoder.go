package lineproto

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// Encoder writes newline-terminated lines to an io.Writer, reusing one
// scratch buffer across calls. It is not safe for concurrent use.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, buf: make([]byte, 0, 256)}
}

// Encode writes the line for m followed by '\n'. Nothing is written when
// serialization fails.
func (e *Encoder) Encode(m Metric) error {
	buf, err := m.AppendLine(e.buf[:0])
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	e.buf = buf[:0]

	_, err = e.w.Write(buf)
	return err
}

var linePool bytebufferpool.Pool

// Marshal returns the line for m in a freshly allocated slice. The
// serialization itself runs in a pooled buffer.
func Marshal(m Metric) ([]byte, error) {
	bb := linePool.Get()
	defer linePool.Put(bb)

	b, err := m.AppendLine(bb.B[:0])
	bb.B = b[:0]
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}
