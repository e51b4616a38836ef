package form

import (
	"fmt"

	"fueltrack/internal/core"
)

// Field names match the wire names used by the submit webhook.
type Field string

const (
	FieldPrice  Field = "prix"
	FieldLiters Field = "litres"
	FieldKm     Field = "kilometres"
)

// Fields lists the inputs in display order.
var Fields = []Field{FieldPrice, FieldLiters, FieldKm}

func (f Field) index() (int, error) {
	switch f {
	case FieldPrice:
		return 0, nil
	case FieldLiters:
		return 1, nil
	case FieldKm:
		return 2, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, string(f))
}

// input holds what the user typed and its numeric reading.
type input struct {
	raw   string
	value float64
}

// parseInput accepts "" or digits with at most one '.' or ','.
func parseInput(raw string) (input, bool) {
	v, err := core.ParseDecimal(raw)
	if err != nil {
		return input{}, false
	}
	return input{raw: raw, value: v}, true
}
