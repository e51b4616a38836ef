// Package core provides decimal parsing and rounding utilities.
//
// Amounts typed by users may use either a dot (12.34) or a comma (12,34) as
// decimal separator. Rounding goes through shopspring/decimal so that values
// such as 1.0005 round the way a person reading them expects.
package core

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumber is returned for text that is not a plain decimal number.
var ErrInvalidNumber = errors.New("invalid number")

// IsDecimalInput reports whether s is acceptable while typing: empty, or
// digits with at most one separator (either '.' or ','). Signs, spaces and
// exponents are rejected.
func IsDecimalInput(s string) bool {
	seenSep := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == ',':
			if seenSep {
				return false
			}
			seenSep = true
		default:
			return false
		}
	}
	return true
}

// NormalizeDecimal replaces the first comma with a dot.
func NormalizeDecimal(s string) string {
	return strings.Replace(s, ",", ".", 1)
}

// ParseDecimal converts user-typed text to a float64.
//
// Examples:
//
//	ParseDecimal("12,5") -> 12.5, nil
//	ParseDecimal("")     -> 0, nil
//	ParseDecimal(".")    -> 0, nil
//	ParseDecimal("1.2.3") -> 0, ErrInvalidNumber
//
// Digit strings too long for a float64 are invalid too.
func ParseDecimal(s string) (float64, error) {
	if !IsDecimalInput(s) {
		return 0, ErrInvalidNumber
	}
	n := NormalizeDecimal(s)
	if n == "" || n == "." {
		return 0, nil
	}
	if strings.HasPrefix(n, ".") {
		n = "0" + n
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return 0, ErrInvalidNumber
	}
	f, _ := d.Float64()
	if !IsFinite(f) {
		return 0, ErrInvalidNumber
	}
	return f, nil
}

// ParseLooseNumber is the lenient variant used on data coming back from the
// webhook: surrounding spaces and a leading sign are allowed.
func ParseLooseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(NormalizeDecimal(s))
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	if !IsFinite(f) {
		return 0, false
	}
	return f, true
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Round rounds v to places decimals, half away from zero. NaN and infinities
// become 0.
func Round(v float64, places int32) float64 {
	if !IsFinite(v) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
