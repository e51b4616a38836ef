package core

import (
	"errors"
	"time"
)

var ErrMissingFillUpDate = errors.New("fill-up date is required")

// FillUp is one row as the automation backend stores it: the submitted
// entry plus the id and timestamp assigned on receipt.
type FillUp struct {
	ID            string
	Date          time.Time
	DistanceKm    float64
	VolumeLiters  float64
	Price         float64
	PricePerLiter float64
}

func NewFillUp(id string, e FuelEntry, at time.Time) FillUp {
	return FillUp{
		ID:            id,
		Date:          at.UTC(),
		DistanceKm:    e.DistanceKm,
		VolumeLiters:  e.VolumeLiters,
		Price:         e.Price,
		PricePerLiter: e.UnitPrice(),
	}
}

func (f FillUp) Entry() FuelEntry {
	return FuelEntry{Price: f.Price, VolumeLiters: f.VolumeLiters, DistanceKm: f.DistanceKm}
}

// Validate checks the entry values and the date.
func (f FillUp) Validate() error {
	if err := f.Entry().Validate(); err != nil {
		return err
	}
	if f.Date.IsZero() {
		return ErrMissingFillUpDate
	}
	return nil
}
