package lineproto

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFields is returned for a record or schema without a single field.
	ErrNoFields = errors.New("lineproto: at least one field is required")
	// ErrNoTime is returned when a schema has no timestamp accessor.
	ErrNoTime = errors.New("lineproto: no timestamp source")
	// ErrNoMeasurement is returned when the measurement name is empty.
	ErrNoMeasurement = errors.New("lineproto: empty measurement name")
	// ErrDuplicateName is returned when a schema declares the same tag or field name twice.
	ErrDuplicateName = errors.New("lineproto: duplicate name")
	// ErrInvalidValue is returned when a field holds the zero Value.
	ErrInvalidValue = errors.New("lineproto: field value has no kind")
)

// SchemaError reports a measurement type that cannot produce valid lines.
// It is returned when the schema is assembled, never per record.
type SchemaError struct {
	Measurement string
	Name        string // offending tag or field name, if any
	Err         error
}

func (e *SchemaError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("schema %q: %v: %q", e.Measurement, e.Err, e.Name)
	}
	return fmt.Sprintf("schema %q: %v", e.Measurement, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
