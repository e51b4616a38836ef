package google

import (
	"fmt"
	"strings"
	"time"

	"fueltrack/internal/core"
)

const dateLayout = time.RFC3339

func encodeRow(f core.FillUp) []any {
	return []any{f.ID, f.Date.UTC().Format(dateLayout), f.DistanceKm, f.VolumeLiters, f.Price, f.PricePerLiter}
}

// parseRows converts a values matrix (as returned by the Sheets API) into
// fill-ups and reports how many non-empty rows could not be parsed.
func parseRows(values [][]interface{}) ([]core.FillUp, int) {
	out := make([]core.FillUp, 0, len(values))
	skipped := 0
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 || strings.Join(cols, "") == "" {
			continue
		}
		f, ok := parseRow(cols)
		if !ok {
			// a header row is expected on top
			if i > 0 {
				skipped++
			}
			continue
		}
		out = append(out, f)
	}
	return out, skipped
}

func parseRow(cols []string) (core.FillUp, bool) {
	if len(cols) < 5 {
		return core.FillUp{}, false
	}
	date, err := time.Parse(dateLayout, cols[1])
	if err != nil {
		return core.FillUp{}, false
	}
	km, ok1 := core.ParseLooseNumber(cols[2])
	litres, ok2 := core.ParseLooseNumber(cols[3])
	total, ok3 := core.ParseLooseNumber(cols[4])
	if !ok1 || !ok2 || !ok3 {
		return core.FillUp{}, false
	}
	f := core.NewFillUp(cols[0], core.FuelEntry{Price: total, VolumeLiters: litres, DistanceKm: km}, date)
	if len(cols) >= 6 {
		if ppl, ok := core.ParseLooseNumber(cols[5]); ok {
			f.PricePerLiter = ppl
		}
	}
	return f, true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
