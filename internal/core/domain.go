package core

import (
	"errors"
	"time"
)

type (
	// FuelEntry is one fill-up as typed by the user. Volume and distance are
	// measured since the previous fill-up.
	FuelEntry struct {
		Price        float64 // total paid
		VolumeLiters float64
		DistanceKm   float64
	}

	// FuelRecord is the canonical shape of a fill-up read back from the
	// history webhook.
	FuelRecord struct {
		ID                  string    `json:"id"`
		DisplayDate         string    `json:"displayDate"`
		ISODate             string    `json:"isoDate"`
		Time                time.Time `json:"-"`
		PricePerLiter       float64   `json:"pricePerLiter"`
		TotalCost           float64   `json:"totalCost"`
		DistanceKm          float64   `json:"distanceKm"`
		VolumeLiters        float64   `json:"volumeLiters"`
		EfficiencyLPer100Km float64   `json:"efficiencyLper100km"`
		// DateEstimated is set when no usable date was present and the
		// processing time was used instead.
		DateEstimated bool `json:"dateEstimated,omitempty"`
	}
)

var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidVolume   = errors.New("invalid volume")
	ErrInvalidDistance = errors.New("invalid distance")
)

// Validate requires every field to be finite and strictly positive.
func (e FuelEntry) Validate() error {
	if !positive(e.Price) {
		return ErrInvalidPrice
	}
	if !positive(e.VolumeLiters) {
		return ErrInvalidVolume
	}
	if !positive(e.DistanceKm) {
		return ErrInvalidDistance
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && IsFinite(v)
}

// UnitPrice returns price per liter rounded to 3 decimals, or 0 when either
// side is not positive.
func (e FuelEntry) UnitPrice() float64 {
	if e.VolumeLiters > 0 && e.Price > 0 {
		return Round(e.Price/e.VolumeLiters, 3)
	}
	return 0
}

// IsBlank reports whether the record carries no measurement at all.
func (r FuelRecord) IsBlank() bool {
	return r.TotalCost == 0 && r.VolumeLiters == 0 && r.DistanceKm == 0
}

// Efficiency returns liters per 100 km rounded to 1 decimal, 0 without distance.
func Efficiency(volumeLiters, distanceKm float64) float64 {
	if distanceKm > 0 {
		return Round(volumeLiters/distanceKm*100, 1)
	}
	return 0
}
