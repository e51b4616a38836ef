package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"fueltrack/internal/core"
	"fueltrack/internal/normalize"
	"fueltrack/internal/webhook"
)

// Shape selects how the history endpoint lays out its answer. Each one is a
// layout the automation backend has produced at some point.
type Shape string

const (
	ShapeFlat    Shape = "flat"    // [record, ...]
	ShapeWrapped Shape = "wrapped" // [{"json": record}, ...]
	ShapeBundle  Shape = "bundle"  // [{"json": [record, ...]}]
	ShapeRecords Shape = "records" // {"records": [record, ...]}
	ShapeFields  Shape = "fields"  // [{"id", "createdTime", "fields": {...}}]
	ShapeStarted Shape = "started" // workflow started acknowledgement
)

var ErrUnknownShape = errors.New("unknown shape")

var shapes = []Shape{ShapeFlat, ShapeWrapped, ShapeBundle, ShapeRecords, ShapeFields, ShapeStarted}

func Shapes() []Shape {
	return append([]Shape(nil), shapes...)
}

func ParseShape(s string) (Shape, error) {
	for _, sh := range shapes {
		if string(sh) == s {
			return sh, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownShape, s)
}

type record struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	Kilometres   float64 `json:"kilometres"`
	Litres       float64 `json:"litres"`
	Total        float64 `json:"total"`
	PrixParLitre float64 `json:"prix_par_litre"`
}

// fieldsRecord mimics table-style APIs: metadata at the root and values as
// strings under "fields".
type fieldsRecord struct {
	ID          string            `json:"id"`
	CreatedTime string            `json:"createdTime"`
	Fields      map[string]string `json:"fields"`
}

func toRecord(f core.FillUp) record {
	return record{
		ID:           f.ID,
		Date:         f.Date.UTC().Format(webhook.ISOLayout),
		Kilometres:   f.DistanceKm,
		Litres:       f.VolumeLiters,
		Total:        f.Price,
		PrixParLitre: f.PricePerLiter,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Encode renders fillUps in shape s.
func Encode(s Shape, fillUps []core.FillUp) ([]byte, error) {
	recs := make([]record, len(fillUps))
	for i, f := range fillUps {
		recs[i] = toRecord(f)
	}

	var v any
	switch s {
	case ShapeFlat:
		v = recs
	case ShapeWrapped:
		wrapped := make([]map[string]record, len(recs))
		for i, r := range recs {
			wrapped[i] = map[string]record{"json": r}
		}
		v = wrapped
	case ShapeBundle:
		v = []map[string][]record{{"json": recs}}
	case ShapeRecords:
		v = map[string][]record{"records": recs}
	case ShapeFields:
		rows := make([]fieldsRecord, len(recs))
		for i, r := range recs {
			rows[i] = fieldsRecord{
				ID:          r.ID,
				CreatedTime: r.Date,
				Fields: map[string]string{
					"date":           r.Date,
					"kilometres":     formatFloat(r.Kilometres),
					"litres":         formatFloat(r.Litres),
					"prix":           formatFloat(r.Total),
					"prix_par_litre": formatFloat(r.PrixParLitre),
				},
			}
		}
		v = rows
	case ShapeStarted:
		v = map[string]string{"message": normalize.WorkflowStartedMessage}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownShape, s)
	}
	return json.Marshal(v)
}
