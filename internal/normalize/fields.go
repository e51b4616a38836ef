package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"fueltrack/internal/core"
)

// Historical field names, first present non-null wins.
var (
	costKeys      = []string{"total", "prix"}
	volumeKeys    = []string{"litres"}
	distanceKeys  = []string{"kilometres"}
	unitPriceKeys = []string{"prix_par_litre", "pricePerLiter"}
	dateKeys      = []string{"date", "createdTime"}
)

func lookup(props map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := props[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

// number coerces a JSON number or numeric string. Everything else is 0.
func number(raw json.RawMessage) float64 {
	if raw == nil {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return finite(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, ok := core.ParseLooseNumber(s); ok {
			return finite(v)
		}
	}
	return 0
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

var dateLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04", false},
}

// parseDate accepts RFC 3339, YYYY-MM-DD (UTC midnight), local date-times
// without zone (interpreted in loc) and epoch milliseconds.
func parseDate(raw json.RawMessage, loc *time.Location) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if l.zoned {
			if t, err := time.Parse(l.layout, s); err == nil {
				return t, true
			}
			continue
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 10 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

var frenchMonths = [...]string{
	"janv.", "févr.", "mars", "avr.", "mai", "juin",
	"juil.", "août", "sept.", "oct.", "nov.", "déc.",
}

// DisplayDate formats t as a French short label such as "10 janv.".
func DisplayDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return strconv.Itoa(t.Day()) + " " + frenchMonths[t.Month()-1]
}
